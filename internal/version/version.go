package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return "resq " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent is the HTTP User-Agent sent to the assistant backend.
func UserAgent() string {
	return "resq/" + Version
}
