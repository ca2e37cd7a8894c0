// Точка входа filedrop — сервис временного хранения файлов.
// Команды: serve (HTTP-сервер с фоновой очисткой), sweep, reconcile,
// list, delete, migrate, token, version.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
