package bot

import "math/rand"

// botRng is the package-level random source used by the strategies. When
// nil, the helpers below delegate to the global math/rand default.
var botRng *rand.Rand

// SeedBotRng sets a deterministic random source for reproducible games.
func SeedBotRng(seed int64) {
	botRng = rand.New(rand.NewSource(seed))
}

// ResetBotRng reverts to the default global random source.
func ResetBotRng() {
	botRng = nil
}

func botIntn(n int) int {
	if botRng != nil {
		return botRng.Intn(n)
	}
	return rand.Intn(n)
}

// pick returns a random element of xs, or the zero value when xs is empty.
func pick[T any](xs []T) T {
	var zero T
	if len(xs) == 0 {
		return zero
	}
	return xs[botIntn(len(xs))]
}
