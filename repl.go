package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"slabcache/internal/config"
	"slabcache/internal/slabs"
	"slabcache/internal/store"
	"slabcache/internal/util"

	"github.com/peterh/liner"
)

// A chunk taken with "alloc", kept until "free" so it can be dumped and given back.
type handle struct {
	chunk	slabs.Chunk
	class	slabs.ClassID
	size	int
}

type REPL struct {
	alloc	*slabs.Allocator
	store	*store.Store
	out	io.Writer
	liner	*liner.State

	handles	map[int]handle
	next	int
}

func createREPL(alloc *slabs.Allocator, st *store.Store, out io.Writer) *REPL {
	return &REPL{
		alloc: 		alloc,
		store: 		st,
		out: 		out,
		handles: 	make(map[int]handle),
		next: 		1,
	}
}

var commands = []string{
	"class", "space", "alloc", "free", "set", "get", "del", "limit", "reserve", "release", "level",
	"stats", "dump", "help", "quit",
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil { return "" }
	return filepath.Join(home, ".slabcache_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range commands {
			if strings.HasPrefix(c, strings.ToLower(line)) { out = append(out, c) }
		}
		return out
	})
	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	fmt.Fprintln(r.out, "slabcache, type 'help' for commands")
	for {
		line, err := r.liner.Prompt("slabs> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) { return nil }
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" { continue }
		r.liner.AppendHistory(line)

		if r.exec(line) { return nil }
	}
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" { return }
	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

// exec runs one command line and reports whether the shell should exit.
func (r *REPL) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 { return false }
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "class":
		err = r.cmdClass(args)
	case "space":
		err = r.cmdSpace(args)
	case "alloc":
		err = r.cmdAlloc(args)
	case "free":
		err = r.cmdFree(args)
	case "set":
		err = r.cmdSet(args)
	case "get":
		err = r.cmdGet(args)
	case "del":
		err = r.cmdDel(args)
	case "limit":
		err = r.cmdLimit(args)
	case "reserve":
		err = r.cmdReserve(args)
	case "release":
		err = r.cmdRelease(args)
	case "level":
		fmt.Fprintln(r.out, r.alloc.ShortageLevel())
	case "stats":
		r.cmdStats()
	case "dump":
		err = r.cmdDump(args)
	default:
		fmt.Fprintf(r.out, "unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `commands:
  class <size>              class id that fits size
  space <size>              bytes a size really takes
  alloc <size>              take a chunk, prints a handle
  free <handle>             give a chunk back
  set <key> <value> [flags] store an item
  get <key>                 fetch an item
  del <key>                 delete an item
  limit [size]              show or change the memory limit
  reserve <class> <pages>   set pages aside for a class
  release <class> <pages>   give unused reserved pages back
  level                     memory shortage level
  stats                     allocator and cache stats
  dump [handle]             page table, or the bytes of a chunk
  help                      this
  quit                      leave
`)
}

var errUsage = errors.New("wrong arguments, see help")

func intArg(args []string, i int) (int, error) {
	if i >= len(args) { return 0, errUsage }
	n, err := strconv.Atoi(args[i])
	if err != nil { return 0, fmt.Errorf("%w: %w", errUsage, err) }
	return n, nil
}

func (r *REPL) sizedClass(args []string) (int, slabs.ClassID, error) {
	size, err := intArg(args, 0)
	if err != nil { return 0, 0, err }
	if size <= 0 { return 0, 0, fmt.Errorf("%w: size must be positive", errUsage) }
	id := r.alloc.ClassForSize(size)
	if id == slabs.NoClass { return size, id, fmt.Errorf("%d bytes is larger than any class", size) }
	return size, id, nil
}

func (r *REPL) cmdClass(args []string) error {
	_, id, err := r.sizedClass(args)
	if err != nil { return err }
	fmt.Fprintf(r.out, "class %d, chunk %d\n", id, r.alloc.ChunkSize(id))
	return nil
}

func (r *REPL) cmdSpace(args []string) error {
	size, err := intArg(args, 0)
	if err != nil { return err }
	fmt.Fprintln(r.out, r.alloc.SpaceForSize(size))
	return nil
}

func (r *REPL) cmdAlloc(args []string) error {
	size, id, err := r.sizedClass(args)
	if err != nil { return err }
	ch, err := r.alloc.Alloc(size, id)
	if err != nil { return err }

	h := r.next
	r.next++
	r.handles[h] = handle{chunk: ch, class: id, size: size}
	fmt.Fprintf(r.out, "#%d class %d chunk %v\n", h, id, ch)
	return nil
}

func (r *REPL) cmdFree(args []string) error {
	n, err := intArg(args, 0)
	if err != nil { return err }
	h, ok := r.handles[n]
	if !ok { return fmt.Errorf("no handle #%d", n) }
	delete(r.handles, n)
	r.alloc.Free(h.chunk, h.size, h.class)
	return nil
}

func (r *REPL) cmdSet(args []string) error {
	if len(args) < 2 { return errUsage }
	flags := 0
	if len(args) > 2 {
		n, err := intArg(args, 2)
		if err != nil { return err }
		flags = n
	}
	err := r.store.Set([]byte(args[0]), []byte(args[1]), uint32(flags))
	if err != nil { return err }
	fmt.Fprintln(r.out, "STORED")
	return nil
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 1 { return errUsage }
	val, flags, ok := r.store.Get([]byte(args[0]))
	if !ok {
		fmt.Fprintln(r.out, "NOT FOUND")
		return nil
	}
	fmt.Fprintf(r.out, "%s (flags %d)\n", val, flags)
	return nil
}

func (r *REPL) cmdDel(args []string) error {
	if len(args) != 1 { return errUsage }
	if r.store.Delete([]byte(args[0])) {
		fmt.Fprintln(r.out, "DELETED")
	} else {
		fmt.Fprintln(r.out, "NOT FOUND")
	}
	return nil
}

func (r *REPL) cmdLimit(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "limit %s, malloced %s\n",
			util.FormatBytes(r.alloc.MemLimit()), util.FormatBytes(r.alloc.Malloced()))
		return nil
	}
	limit, err := config.ParseSize(args[0])
	if err != nil { return err }
	return r.alloc.SetMemLimit(limit)
}

func (r *REPL) cmdReserve(args []string) error {
	id, pages, err := r.classPages(args)
	if err != nil { return err }
	return r.alloc.Reserve(id, pages)
}

func (r *REPL) classPages(args []string) (slabs.ClassID, int, error) {
	id, err := intArg(args, 0)
	if err != nil { return 0, 0, err }
	pages, err := intArg(args, 1)
	if err != nil { return 0, 0, err }
	if id < 0 || id > int(r.alloc.Largest()) { return 0, 0, slabs.ErrInvalidClass }
	return slabs.ClassID(id), pages, nil
}

func (r *REPL) cmdRelease(args []string) error {
	id, pages, err := r.classPages(args)
	if err != nil { return err }
	return r.alloc.Release(id, pages)
}

func (r *REPL) cmdStats() {
	type kv struct{ key, val string }
	var stats []kv
	r.store.Stats(func(key string, val string, cookie any) {
		stats = append(stats, kv{key, val})
	}, nil)
	for _, s := range stats {
		fmt.Fprintf(r.out, "STAT %s %s\n", s.key, s.val)
	}
}

func (r *REPL) cmdDump(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(r.out, r.alloc.Dump())
		return nil
	}
	n, err := intArg(args, 0)
	if err != nil { return err }
	h, ok := r.handles[n]
	if !ok { return fmt.Errorf("no handle #%d", n) }
	data, err := r.alloc.Bytes(h.chunk, h.class)
	if err != nil { return err }
	fmt.Fprint(r.out, util.HexDump(data, 256))
	return nil
}
