package soundmatch

// SelectTag picks the highest scoring tag.
// Ties go to the earliest tag. Returns false for an empty slice.
func SelectTag(tags []Tag) (Tag, bool) {
	if len(tags) == 0 {
		return Tag{}, false
	}

	best := tags[0]
	for _, tag := range tags[1:] {
		if tag.Score > best.Score {
			best = tag
		}
	}
	return best, true
}
