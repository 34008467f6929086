package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/bookstore/internal/version.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку бинарника.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Dev сообщает, что бинарник собран без ldflags.
func (b Build) Dev() bool {
	return b.Version == "dev"
}

// LogFields возвращает поля для стартовой записи в лог.
func (b Build) LogFields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }
