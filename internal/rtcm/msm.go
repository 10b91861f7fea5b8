package rtcm

import "strings"

// signalInfo records which constellation and carrier bands a message
// type implies. Keyed by message id; the MSM ranges are dense so the
// table is spelled out per id.
type signalInfo struct {
	gnss     string
	carriers string // "+"-joined band list
}

var signalTable = map[int]signalInfo{
	// SBAS (1040-1047)
	1040: {"SBAS", "L1"},
	1041: {"SBAS", "L1+L5"},
	1042: {"SBAS", "L5"},
	1043: {"SBAS", "L1+C1"},
	1044: {"SBAS", "L1+L2"},
	1045: {"SBAS", "L2+L5"},
	1046: {"SBAS", "L2"},
	1047: {"SBAS", "L1+L2+L5"},

	// GPS (1070-1077)
	1070: {"GPS", "L1"},
	1071: {"GPS", "L1+L2"},
	1072: {"GPS", "L2"},
	1073: {"GPS", "L1+C1"},
	1074: {"GPS", "L5"},
	1075: {"GPS", "L1+L5"},
	1076: {"GPS", "L2+L5"},
	1077: {"GPS", "L1+L2+L5"},

	// GLONASS (1080-1087)
	1080: {"GLO", "G1"},
	1081: {"GLO", "G1+G2"},
	1082: {"GLO", "G2"},
	1083: {"GLO", "G1+C1"},
	1084: {"GLO", "G3"},
	1085: {"GLO", "G1+G3"},
	1086: {"GLO", "G2+G3"},
	1087: {"GLO", "G1+G2+G3"},

	// Galileo (1090-1097)
	1090: {"GAL", "E1"},
	1091: {"GAL", "E1+E5b"},
	1092: {"GAL", "E5b"},
	1093: {"GAL", "E1+C1"},
	1094: {"GAL", "E5a"},
	1095: {"GAL", "E1+E5a"},
	1096: {"GAL", "E5b+E5a"},
	1097: {"GAL", "E1+E5a+E5b"},

	// QZSS (1100-1107)
	1100: {"QZSS", "L1"},
	1101: {"QZSS", "L1+L2"},
	1102: {"QZSS", "L2"},
	1103: {"QZSS", "L1+C1"},
	1104: {"QZSS", "L5"},
	1105: {"QZSS", "L1+L5"},
	1106: {"QZSS", "L2+L5"},
	1107: {"QZSS", "L1+L2+L5+LEX"},

	// IRNSS (1110-1117)
	1110: {"IRNSS", "L5"},
	1111: {"IRNSS", "L5+S"},
	1112: {"IRNSS", "S"},
	1113: {"IRNSS", "L5+C1"},
	1114: {"IRNSS", "L1"},
	1115: {"IRNSS", "L1+L5"},
	1116: {"IRNSS", "L1+S"},
	1117: {"IRNSS", "L1+L5+S"},

	// BeiDou (1120-1127)
	1120: {"BDS", "B1I"},
	1121: {"BDS", "B1I+B3I"},
	1122: {"BDS", "B3I"},
	1123: {"BDS", "B1I+B2I"},
	1124: {"BDS", "B2I"},
	1125: {"BDS", "B1I+B2I"},
	1126: {"BDS", "B2I+B3I"},
	1127: {"BDS", "B1I+B2I+B3I"},
}

// SignalInfo returns the constellation and individual carrier bands for
// a message id, or ok=false when the id carries no signal information.
func SignalInfo(msgID int) (gnss string, carriers []string, ok bool) {
	info, ok := signalTable[msgID]
	if !ok {
		return "", nil, false
	}
	return info.gnss, strings.Split(info.carriers, "+"), true
}
