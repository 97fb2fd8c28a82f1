package schedule

// CoincidenceFunc 判断两条周期序列在 [laterStart, endWeek) 内是否存在公共周次。
//
//	later: laterStart, laterStart+laterPeriod, ...
//	other: otherStart, otherStart+otherPeriod, ...
//
// 调用方保证 laterStart >= otherStart。
type CoincidenceFunc func(laterStart, laterPeriod, otherStart, otherPeriod, endWeek int) bool

// BruteForceCoincidence 按 later 的周期逐周枚举，检查是否落在 other 的相位上。
// 复杂度 O((endWeek-laterStart)/laterPeriod)，学期长度有限时足够。
func BruteForceCoincidence(laterStart, laterPeriod, otherStart, otherPeriod, endWeek int) bool {
	for w := laterStart; w < endWeek; w += laterPeriod {
		if floorMod(int64(w-otherStart), int64(otherPeriod)) == 0 {
			return true
		}
	}
	return false
}

// CongruenceCoincidence 闭式解：求满足
//
//	w ≡ laterStart (mod laterPeriod)
//	w ≡ otherStart (mod otherPeriod)
//
// 且 w >= laterStart 的最小 w，再与 endWeek 比较。结果与 BruteForceCoincidence 一致。
func CongruenceCoincidence(laterStart, laterPeriod, otherStart, otherPeriod, endWeek int) bool {
	if laterStart >= endWeek {
		return false
	}
	p1, p2 := int64(laterPeriod), int64(otherPeriod)
	g, x, _ := extendedGCD(p1, p2)
	// w = laterStart + p1*k，需 p1*k ≡ d (mod p2)
	d := floorMod(int64(otherStart-laterStart), p2)
	if d%g != 0 {
		return false
	}
	m := p2 / g
	// x 为 p1/g 在模 m 下的逆元
	k := floorMod(floorMod(d/g, m)*floorMod(x, m), m)
	w := int64(laterStart) + p1*k
	return w < int64(endWeek)
}

// extendedGCD 返回 g = gcd(a, b) 以及 a*x + b*y = g 的一组解
func extendedGCD(a, b int64) (g, x, y int64) {
	if b == 0 {
		return a, 1, 0
	}
	g, x1, y1 := extendedGCD(b, a%b)
	return g, y1, x1 - (a/b)*y1
}
