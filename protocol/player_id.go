package protocol

import "strconv"

// ValidPlayerID 玩家编号必须是单个可打印字符：数字 1..9（原版客户端直接发整数），
// 或可打印 ASCII 字符码 33..126
func ValidPlayerID(v int16) bool {
	switch {
	case v >= 1 && v <= 9:
		return true
	case v >= '!' && v <= '~':
		return true
	default:
		return false
	}
}

// CanonicalPlayerID 数字字符 '1'..'9' 与整数 1..9 显示相同，统一为整数，
// 保证同一个字符只对应一个编号
func CanonicalPlayerID(v int16) int16 {
	if v >= '1' && v <= '9' {
		return v - '0'
	}
	return v
}

// FormatPlayerID 仅在边界（日志）处把编号渲染为字符，0（尚未报号）渲染为 "-"
func FormatPlayerID(v int16) string {
	if v == 0 {
		return "-"
	}
	if v >= 1 && v <= 9 {
		return strconv.Itoa(int(v))
	}
	if v >= '!' && v <= '~' {
		return string(rune(v))
	}
	return "#" + strconv.Itoa(int(v))
}
