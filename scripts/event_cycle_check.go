// event_cycle_check.go: Static event cycle detection for the top-up saga
// Usage: go run scripts/event_cycle_check.go
// Reads the handler registrations in pkg/handler and the events emitted by
// the orchestrator in pkg/service/topup, builds the event flow graph, and
// detects cycles.
package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	eventTypeRe = regexp.MustCompile(`EventType([A-Za-z0-9]+)\s+EventType\s*=`)
	registerRe  = regexp.MustCompile(`bus\.Register\(events\.EventType([A-Za-z0-9]+)\s*,\s*(.*)$`)
	emitRe      = regexp.MustCompile(`(?:&events\.([A-Za-z0-9]+)\s*\{|events\.New([A-Za-z0-9]+)\()`)
)

// scanLines calls fn for every line of every .go file under dir, skipping tests.
func scanLines(dir string, fn func(line string)) error {
	return walkDir(dir, func(path string) {
		if strings.HasSuffix(path, "_test.go") {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close() //nolint:errcheck
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fn(scanner.Text())
		}
	})
}

func eventCycleCheck() int {
	// 1. Known event types
	known := make(map[string]bool)
	if err := scanLines("pkg/domain/events", func(line string) {
		if m := eventTypeRe.FindStringSubmatch(line); m != nil {
			known[m[1]] = true
		}
	}); err != nil {
		fmt.Println("Error: could not read pkg/domain/events:", err)
		return 1
	}

	// 2. Events consumed by handlers that delegate to the orchestrator
	var consumed []string
	if err := scanLines("pkg/handler", func(line string) {
		m := registerRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		if strings.Contains(m[2], "svc") {
			consumed = append(consumed, m[1])
		}
	}); err != nil {
		fmt.Println("Error walking handler files:", err)
		return 1
	}

	// 3. Events the orchestrator emits
	emitted := make(map[string]bool)
	if err := scanLines("pkg/service/topup", func(line string) {
		for _, m := range emitRe.FindAllStringSubmatch(line, -1) {
			name := m[1] + m[2]
			if known[name] {
				emitted[name] = true
			}
		}
	}); err != nil {
		fmt.Println("Error walking orchestrator files:", err)
		return 1
	}

	// 4. Build event-to-event graph and detect cycles
	graph := make(map[string][]string)
	for _, from := range consumed {
		for to := range emitted {
			graph[from] = append(graph[from], to)
		}
	}

	visited := make(map[string]bool)
	stack := make(map[string]bool)
	var hasCycle bool
	var path []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		if stack[node] {
			fmt.Println("Cycle detected:", append(path, node))
			hasCycle = true
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		stack[node] = true
		path = append(path, node)
		for _, neighbor := range graph[node] {
			if dfs(neighbor) {
				return true
			}
		}
		stack[node] = false
		path = path[:len(path)-1]
		return false
	}

	fmt.Println("\nEvent Flow Graph:")
	for from, tos := range graph {
		fmt.Printf("  %s -> %v\n", from, tos)
	}

	fmt.Println("\nCycle Detection:")
	for node := range graph {
		if !visited[node] {
			dfs(node)
		}
	}
	if hasCycle {
		fmt.Println("\n❌ Event cycle(s) detected! Review your event flow.")
		return 1
	}
	fmt.Println("\n✅ No event cycles detected.")
	return 0
}

// walkDir recursively walks a directory and calls fn for each .go file
func walkDir(dir string, fn func(path string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := walkDir(dir+"/"+entry.Name(), fn); err != nil {
				return err
			}
		} else if strings.HasSuffix(entry.Name(), ".go") {
			fn(dir + "/" + entry.Name())
		}
	}
	return nil
}

func main() {
	os.Exit(eventCycleCheck())
}
