package physics

// Collision filter groups.
const (
	GroupDefault          uint32 = 1
	GroupCharacters       uint32 = 2
	GroupTrimeshColliders uint32 = 4

	MaskAll uint32 = 0xffffffff
)

func canCollide(groupA, maskA, groupB, maskB uint32) bool {
	return groupA&maskB != 0 && groupB&maskA != 0
}
