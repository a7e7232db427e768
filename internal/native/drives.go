package native

// DecodeDriveMask expands a logical-drive bitmask (bit 0 = A:) into root paths.
func DecodeDriveMask(mask uint32) []string {
	var roots []string
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) != 0 {
			roots = append(roots, string(rune('A'+i))+`:\`)
		}
	}
	return roots
}
