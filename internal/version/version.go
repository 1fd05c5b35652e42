// Package version хранит сведения о сборке, заданные через -ldflags:
//
//	-X github.com/vladislavdragonenkov/storefront-ids/internal/version.version=v1.2.0
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion отдаётся в /healthz и в логе старта.
func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// String собирает все поля в одну строку для логов.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
