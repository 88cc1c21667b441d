// Package driver implements the textual command interface over a tree:
// whitespace-separated insert/delete/find records consumed from a stream
// until end of input, with query results printed back.
package driver

import (
	"bufio"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bptindex/internal/btree"
	"bptindex/internal/storage"
)

// Processor reads commands from a token stream and applies them to a
// tree. Input files may carry a leading record count as their first
// token; it is accepted and ignored, since the stream is consumed to EOF
// either way.
type Processor struct {
	tree *btree.BPlusTree
	in   *bufio.Scanner
	out  *bufio.Writer
	log  *zap.Logger
}

// New builds a processor over the tree, reading commands from r and
// writing query results to w. A nil logger defaults to a no-op logger.
func New(tree *btree.BPlusTree, r io.Reader, w io.Writer, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	in := bufio.NewScanner(r)
	in.Split(bufio.ScanWords)
	in.Buffer(make([]byte, 64*1024), 64*1024)
	return &Processor{
		tree: tree,
		in:   in,
		out:  bufio.NewWriter(w),
		log:  log,
	}
}

// Run consumes the stream to EOF, executing each command. Output is
// flushed before returning. An unknown command or a truncated record is
// an error; a clean EOF is not.
func (p *Processor) Run() error {
	defer p.out.Flush()

	first := true
	commands := 0
	for {
		tok, ok := p.next()
		if !ok {
			break
		}
		if first {
			first = false
			// Leading record count, if present.
			if _, err := strconv.Atoi(tok); err == nil {
				continue
			}
		}

		var err error
		switch tok {
		case "insert":
			err = p.runInsert()
		case "delete":
			err = p.runDelete()
		case "find":
			err = p.runFind()
		default:
			return errors.Errorf("unknown command %q", tok)
		}
		if err != nil {
			return err
		}
		commands++
	}
	if err := p.in.Err(); err != nil {
		return errors.Wrap(err, "read command stream")
	}
	p.log.Info("command stream finished", zap.Int("commands", commands))
	return p.out.Flush()
}

// next returns the next whitespace-separated token.
func (p *Processor) next() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return p.in.Text(), true
}

// readPair reads the key and record operands shared by insert and delete.
func (p *Processor) readPair(cmd string) (storage.Key, storage.Record, error) {
	var toks [4]string
	for i := range toks {
		tok, ok := p.next()
		if !ok {
			return storage.Key{}, storage.Record{}, errors.Errorf("%s: truncated record", cmd)
		}
		toks[i] = tok
	}
	tag, err := strconv.ParseInt(toks[3], 10, 32)
	if err != nil {
		return storage.Key{}, storage.Record{}, errors.Wrapf(err, "%s: bad tag %q", cmd, toks[3])
	}
	return storage.MakeKey(toks[0]), storage.MakeRecord(toks[1], toks[2], int32(tag)), nil
}

func (p *Processor) runInsert() error {
	key, rec, err := p.readPair("insert")
	if err != nil {
		return err
	}
	return p.tree.Insert(key, rec)
}

func (p *Processor) runDelete() error {
	key, rec, err := p.readPair("delete")
	if err != nil {
		return err
	}
	// A missing entry is silent, not an error.
	_, err = p.tree.Remove(key, rec)
	return err
}

// runFind prints the values under the key sorted ascending, one per
// line, or the literal "null" when there are none, then a blank line.
func (p *Processor) runFind() error {
	tok, ok := p.next()
	if !ok {
		return errors.New("find: truncated record")
	}
	values, err := p.tree.Find(storage.MakeKey(tok))
	if err != nil {
		return err
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Less(values[j]) })

	if len(values) == 0 {
		if _, err := p.out.WriteString("null\n"); err != nil {
			return errors.Wrap(err, "write result")
		}
	}
	for _, v := range values {
		if _, err := p.out.WriteString(v.String() + "\n"); err != nil {
			return errors.Wrap(err, "write result")
		}
	}
	if _, err := p.out.WriteString("\n"); err != nil {
		return errors.Wrap(err, "write result")
	}
	return nil
}
