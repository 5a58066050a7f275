package version

import "fmt"

// Заполняются при сборке через -ldflags -X.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, commit и дату сборки сервиса.
func Info() (v, c, d string) { return version, commit, date }

// String — строка версии для логов и флага -version.
func String() string {
	return fmt.Sprintf("orderflow version=%s commit=%s date=%s", version, commit, date)
}
