package version

import "fmt"

// Значения подставляются при сборке через -ldflags:
//
//	-X .../internal/version.version=v1.2.3
//	-X .../internal/version.commit=abc1234
//	-X .../internal/version.buildDate=2026-08-29
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Version возвращает семантическую версию сборки.
func Version() string { return version }

// Commit возвращает git-ревизию сборки.
func Commit() string { return commit }

// BuildDate возвращает дату сборки.
func BuildDate() string { return buildDate }

// String собирает человекочитаемую строку для стартового лога.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}
