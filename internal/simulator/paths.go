package simulator

import (
	"path"
	"runtime"
)

// EEC installation roots the datasource binaries ship under.
var datasourceRoots = map[OsType]map[EecType]string{
	OsLinux: {
		EecOneAgent:   "/opt/eec/oneagent/datasources",
		EecActiveGate: "/opt/eec/activegate/datasources",
	},
	OsWindows: {
		EecOneAgent:   "C:/Program Files/eec/oneagent/datasources",
		EecActiveGate: "C:/Program Files/eec/activegate/datasources",
	},
}

// DatasourcePath resolves the directory and executable file name of a
// datasource binary for the given host OS and EEC type. Paths use forward
// slashes throughout; they are joined for remote hosts as well as local
// ones, so filepath's host-specific separator is deliberately avoided.
func DatasourcePath(os OsType, eec EecType, datasource string) (dir, file string) {
	root := datasourceRoots[os][eec]
	dir = path.Join(root, datasource)
	file = "eecsource" + datasource
	if os == OsWindows {
		file += ".exe"
	}
	return dir, file
}

// LocalOs maps the running platform onto the simulator's OS enumeration.
func LocalOs() OsType {
	if runtime.GOOS == "windows" {
		return OsWindows
	}
	return OsLinux
}
