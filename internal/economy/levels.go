package economy

// LevelCost returns the XP needed to advance from level to level+1.
// The curve is linear: 100, 150, 200, ...
func LevelCost(level int) int64 {
	if level < 1 {
		level = 1
	}
	return 100 + int64(level-1)*50
}

// LevelForXP peels level costs off totalXP and returns the resulting level,
// the XP accumulated inside it and the cost of the next level.
func LevelForXP(totalXP int64) (level int, xpInLevel, xpToNext int64) {
	level = 1
	remaining := totalXP
	if remaining < 0 {
		remaining = 0
	}
	for remaining >= LevelCost(level) {
		remaining -= LevelCost(level)
		level++
	}
	return level, remaining, LevelCost(level)
}

// TotalXPForLevel returns the minimum total XP at which a user holds level.
// It is the inverse of LevelForXP at the level boundary.
func TotalXPForLevel(level int) int64 {
	var total int64
	for l := 1; l < level; l++ {
		total += LevelCost(l)
	}
	return total
}
