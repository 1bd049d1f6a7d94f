package simulator

// DatasourcePython is the SDK-backed datasource; it is special-cased
// throughout: no EEC binary is involved, simulation goes through the
// Python SDK instead.
const DatasourcePython = "python"

// supportMatrix maps (OS, EEC type) to the datasources that combination
// can host. WMI is Windows-only; SNMP traps and SQL need an ActiveGate.
var supportMatrix = map[OsType]map[EecType][]string{
	OsWindows: {
		EecOneAgent:   {"wmi", "prometheus", "statsd", DatasourcePython},
		EecActiveGate: {"wmi", "snmp", "snmptraps", "sqlDb", "prometheus", DatasourcePython},
	},
	OsLinux: {
		EecOneAgent:   {"prometheus", "statsd", DatasourcePython},
		EecActiveGate: {"snmp", "snmptraps", "sqlDb", "prometheus", DatasourcePython},
	},
}

// CanSimulate reports whether the datasource can run under the given EEC
// type on the given OS. Unknown datasource names return false.
func CanSimulate(os OsType, eec EecType, datasource string) bool {
	byEec, ok := supportMatrix[os]
	if !ok {
		return false
	}
	for _, name := range byEec[eec] {
		if name == datasource {
			return true
		}
	}
	return false
}

// KnownDatasources returns the union of all supported datasource names,
// in a stable order.
func KnownDatasources() []string {
	seen := make(map[string]bool)
	var names []string
	for _, os := range []OsType{OsWindows, OsLinux} {
		for _, eec := range []EecType{EecOneAgent, EecActiveGate} {
			for _, name := range supportMatrix[os][eec] {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	return names
}
