package nn

// LanguageID identifies, per batch entry, which language's factorized or
// normalization parameters apply.
//
// A single value is broadcast to the whole batch; otherwise there must be one
// value per batch entry. A nil LanguageID is only valid for layers that are
// not multilingual.
type LanguageID []int

// Monolingual returns a LanguageID that applies lang to every batch entry.
func Monolingual(lang int) LanguageID {
	return LanguageID{lang}
}

// resolve expands l to one id per batch entry, panicking with a contract
// violation when it is missing, has the wrong length, or holds an id outside
// [0, languages).
func (l LanguageID) resolve(op string, batch, languages int) []int {
	if len(l) == 0 {
		violation("%s: language ids are required", op)
	}
	if len(l) != 1 && len(l) != batch {
		violation("%s: got %d language ids for batch of %d", op, len(l), batch)
	}
	ids := make([]int, batch)
	for b := range ids {
		id := l[0]
		if len(l) > 1 {
			id = l[b]
		}
		if id < 0 || id >= languages {
			violation("%s: language id %d out of range [0, %d)", op, id, languages)
		}
		ids[b] = id
	}
	return ids
}

// groupByLanguage returns the distinct ids in order of first appearance and,
// for each, the batch entries using it.
func groupByLanguage(ids []int) (langs []int, members map[int][]int) {
	members = make(map[int][]int)
	for b, id := range ids {
		if _, ok := members[id]; !ok {
			langs = append(langs, id)
		}
		members[id] = append(members[id], b)
	}
	return langs, members
}
