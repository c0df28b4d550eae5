// Package types 定義了 roadcrew 模擬中共用的核心領域模型
package types

import (
	"fmt"
	"strings"
)

// ============================================================================
// 任務種類（bitmask，可一次查詢多種）
// ============================================================================

// JobKind 任務種類，每個種類佔一個 bit
type JobKind int

const (
	JobClear JobKind = 1 << iota // 清除草地 → Dirt
	JobFill                      // 填土（需要已裝土的卡車）
	JobCut                       // 挖掘高點（需要挖土機 + 卡車會合）
	JobPave                      // 鋪柏油
	JobRoll                      // 壓路
	JobWait                      // 卡車等待挖土機裝土
	JobLevel                     // 推土機推平土堆
)

// JobAny matches every job kind.
const JobAny = JobClear | JobFill | JobCut | JobPave | JobRoll | JobWait | JobLevel

var jobKindNames = []struct {
	kind JobKind
	name string
}{
	{JobClear, "CLEAR"},
	{JobFill, "FILL"},
	{JobCut, "CUT"},
	{JobPave, "PAVE"},
	{JobRoll, "ROLL"},
	{JobWait, "WAIT"},
	{JobLevel, "LEVEL"},
}

// JobKinds lists every single-bit kind in declaration order.
func JobKinds() []JobKind {
	kinds := make([]JobKind, 0, len(jobKindNames))
	for _, n := range jobKindNames {
		kinds = append(kinds, n.kind)
	}
	return kinds
}

// Has reports whether k intersects mask.
func (k JobKind) Has(mask JobKind) bool {
	return k&mask != 0
}

func (k JobKind) String() string {
	var parts []string
	for _, n := range jobKindNames {
		if k&n.kind != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ParseJobKind 將名稱（如 "PAVE"）轉回 JobKind
func ParseJobKind(name string) (JobKind, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, n := range jobKindNames {
		if n.name == name {
			return n.kind, true
		}
	}
	return 0, false
}

// NoParam is the Param value of jobs that carry no parameter.
const NoParam = -1

// Job 任務紀錄，建立後不可變
//
// 任務只會存在於一個地方：佇列中，或某台機器的 current job。
// 以指標識別（identity），Seq 只用於日誌與診斷。
type Job struct {
	Kind  JobKind `json:"kind"`  // 任務種類
	I     int     `json:"i"`     // 目標格 i
	J     int     `json:"j"`     // 目標格 j
	Param int     `json:"param"` // 依種類而定，LEVEL 為方向
	Seq   uint64  `json:"seq"`   // 佇列指派的序號
}

// NewJob builds a job record.
func NewJob(kind JobKind, i, j, param int) *Job {
	return &Job{Kind: kind, I: i, J: j, Param: param}
}

func (j *Job) String() string {
	if j == nil {
		return "<none>"
	}
	if j.Kind == JobLevel {
		return fmt.Sprintf("%s (%d,%d) %s", j.Kind, j.I, j.J, Direction(j.Param))
	}
	return fmt.Sprintf("%s (%d,%d)", j.Kind, j.I, j.J)
}

// ============================================================================
// 方向（8 個羅盤方向，順時針編號）
// ============================================================================

// Direction 面向，0=N 順時針到 7=NW
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// 每個方向對應的格子位移（j 軸向下為 South）
var directionSteps = [...][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Valid reports whether d is one of the eight compass directions.
func (d Direction) Valid() bool {
	return d >= North && d <= NorthWest
}

// Step returns the cell delta of one move in direction d.
func (d Direction) Step() (di, dj int) {
	s := directionSteps[d&7]
	return s[0], s[1]
}

// CW 順時針轉 45°
func (d Direction) CW() Direction { return (d + 1) & 7 }

// CCW 逆時針轉 45°
func (d Direction) CCW() Direction { return (d - 1) & 7 }

// Opposite returns the direction rotated by 180°.
func (d Direction) Opposite() Direction { return (d + 4) & 7 }

// TurnsCW / TurnsCCW 到 target 需要的 45° 步數
func (d Direction) TurnsCW(target Direction) int  { return int((target - d) & 7) }
func (d Direction) TurnsCCW(target Direction) int { return int((d - target) & 7) }

// DirectionBetween returns the 45°-granularity direction from (si,sj)
// toward (di,dj): cardinal when aligned on one axis, diagonal otherwise.
// ok is false when both points are equal.
func DirectionBetween(si, sj, di, dj int) (dir Direction, ok bool) {
	dx, dy := sign(di-si), sign(dj-sj)
	if dx == 0 && dy == 0 {
		return North, false
	}
	for d, s := range directionSteps {
		if s[0] == dx && s[1] == dy {
			return Direction(d), true
		}
	}
	return North, false
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// ============================================================================
// 地形種類
// ============================================================================

// Variant 地形格的種類標籤
type Variant int

const (
	Grass Variant = iota
	Dirt
	Road
	AsphaltPile
	DirtPile
	Depot
)

var variantNames = [...]string{"Grass", "Dirt", "Road", "AsphaltPile", "DirtPile", "Depot"}

// Variants lists every terrain variant.
func Variants() []Variant {
	return []Variant{Grass, Dirt, Road, AsphaltPile, DirtPile, Depot}
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ============================================================================
// 機器
// ============================================================================

// MachineID 機器識別碼，由 Fleet 指派，從 1 開始
type MachineID int

// Archetype 機器種類，建立後不變
type Archetype int

const (
	Digger Archetype = iota
	Bulldozer
	Roller
	Grader
	Hauler
)

var archetypeNames = [...]string{"Digger", "Bulldozer", "Roller", "Grader", "Hauler"}

// Archetypes lists every machine archetype.
func Archetypes() []Archetype {
	return []Archetype{Digger, Bulldozer, Roller, Grader, Hauler}
}

func (a Archetype) String() string {
	if a < 0 || int(a) >= len(archetypeNames) {
		return fmt.Sprintf("Archetype(%d)", int(a))
	}
	return archetypeNames[a]
}

// Cargo 貨物／動畫格
type Cargo int

const (
	CargoEmpty          Cargo = 0 // 空車
	CargoLoaded         Cargo = 1 // 已裝土（挖土機設定）
	CargoDumpingDirt    Cargo = 2 // 卸土動畫
	CargoAsphalt        Cargo = 3 // 已裝柏油
	CargoDumpingAsphalt Cargo = 4 // 卸柏油動畫
)

func (c Cargo) String() string {
	switch c {
	case CargoEmpty:
		return "empty"
	case CargoLoaded:
		return "loaded"
	case CargoDumpingDirt:
		return "dumping-dirt"
	case CargoAsphalt:
		return "asphalt"
	case CargoDumpingAsphalt:
		return "dumping-asphalt"
	}
	return fmt.Sprintf("Cargo(%d)", int(c))
}
