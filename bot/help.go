package bot

import "fmt"

var commandOrder = []string{"start", "stop", "show", "list", "del", "help"}

var commandHelp = map[string]string{
	"start": "start [title [@target ...]] — start recording; title defaults to the current time, targets default to the sender (mentioning targets excludes the sender unless mentioned too)",
	"stop":  "stop [title] — stop recording; defaults to the sender's current recording",
	"show":  "show <title> — show a record",
	"list":  "list [page [num]] — list records (defaults 0, 10)",
	"del":   "del <title> — delete a record",
	"help":  "help [command] — show help",
}

func helpFor(prefix, name string) string {
	return fmt.Sprintf("%s %s", prefix, commandHelp[name])
}

func helpResponse(prefix, topic string) Response {
	if topic == "" {
		return PlainText("%s <start|stop|show|list|del|help>", prefix)
	}
	if _, ok := commandHelp[topic]; ok {
		return PlainText("%s", helpFor(prefix, topic))
	}
	if m := closestCommand(topic); m != "" {
		return PlainText("ERROR: Unknown command %s - maybe you meant %s", topic, m)
	}
	return PlainText("ERROR: Unknown command %s", topic)
}

// closestCommand suggests the known command with the smallest edit distance,
// or "" when nothing is close enough to be a plausible typo.
func closestCommand(s string) string {
	best, bestDist := "", len(s)+1
	for _, c := range commandOrder {
		if d := editDistance(s, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist > len(best)/2+1 {
		return ""
	}
	return best
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
