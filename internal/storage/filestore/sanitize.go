package filestore

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLen — предел длины очищенного имени в байтах.
// Оставляет место для суффикса (N) в пределах 255 байт.
const MaxNameLen = 200

// maxExtLen — более длинный "суффикс после точки" расширением не считается.
const maxExtLen = 32

// placeholderName заменяет пустое имя или пустую основу имени.
const placeholderName = "file"

// SanitizeName приводит имя файла, полученное от клиента, к безопасному виду:
// остаётся только часть после последнего / или \, удаляются "..",
// управляющие символы и некорректный UTF-8, ведущие точки и пробелы основы.
// Расширение сохраняется: при превышении MaxNameLen байт обрезается основа
// по границе руны. Пустая основа заменяется на "file" (".bin" → "file.bin").
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "")
	}

	ext := filepath.Ext(strings.TrimRight(name, " "))
	if len(ext) > maxExtLen || strings.ContainsRune(ext, ' ') {
		ext = ""
	}
	base := strings.TrimSuffix(strings.TrimRight(name, " "), ext)
	if ext == "." {
		ext = ""
	}

	base = strings.TrimLeft(base, ". ")
	base = strings.TrimRight(base, " ")
	if len(base)+len(ext) > MaxNameLen {
		base = strings.TrimRight(truncateRunes(base, MaxNameLen-len(ext)), " ")
	}

	if base == "" {
		base = placeholderName
	}
	return base + ext
}

// truncateRunes обрезает s до n байт, не разрывая многобайтовую руну.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
