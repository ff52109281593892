package audioroute

import (
	"bufio"
	"strconv"
	"strings"
)

// block is one entry of a long-form `pactl list` listing.
type block struct {
	ID     int
	Fields map[string]string
	Props  map[string]string
}

// parseBlocks splits `pactl list <kind>` output into blocks headed by
// "<header>#<id>", e.g. "Sink Input #42".
func parseBlocks(out, header string) []block {
	var (
		blocks []block
		cur    *block
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, header+"#"); ok {
			id, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				cur = nil
				continue
			}
			blocks = append(blocks, block{ID: id, Fields: map[string]string{}, Props: map[string]string{}})
			cur = &blocks[len(blocks)-1]
			continue
		}
		if cur == nil {
			continue
		}
		if key, value, ok := strings.Cut(line, " = "); ok {
			cur.Props[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
			continue
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			if _, dup := cur.Fields[key]; !dup {
				cur.Fields[key] = strings.TrimSpace(value)
			}
		}
	}
	return blocks
}

// intField returns a numeric field, or -1.
func (b block) intField(key string) int {
	n, err := strconv.Atoi(b.Fields[key])
	if err != nil {
		return -1
	}
	return n
}

// matches reports whether any property contains substr, ignoring case.
func (b block) matches(substr string) bool {
	substr = strings.ToLower(substr)
	for _, v := range b.Props {
		if strings.Contains(strings.ToLower(v), substr) {
			return true
		}
	}
	return false
}

// shortEntry is one tab-separated line of `pactl list <kind> short`.
type shortEntry struct {
	ID     int
	Name   string
	Fields []string
}

func parseShort(out string) []shortEntry {
	var entries []shortEntry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		entries = append(entries, shortEntry{ID: id, Name: strings.TrimSpace(fields[1]), Fields: fields[2:]})
	}
	return entries
}
