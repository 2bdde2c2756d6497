package scoring

// sharedLanguages returns the guest's spelling of every language both
// parties list, in the guest's order, without duplicates.
func sharedLanguages(guest, host []string) []string {
	hostSet := make(map[string]bool, len(host))
	for _, l := range host {
		hostSet[normalize(l)] = true
	}

	var shared []string
	seen := make(map[string]bool, len(guest))
	for _, l := range guest {
		key := normalize(l)
		if key == "" || seen[key] || !hostSet[key] {
			continue
		}
		seen[key] = true
		shared = append(shared, l)
	}
	return shared
}

// distinctCount counts languages after normalization.
func distinctCount(langs []string) int {
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		if key := normalize(l); key != "" {
			seen[key] = true
		}
	}
	return len(seen)
}

func isEnglish(lang string) bool {
	return normalize(lang) == "english"
}
