// Copyright 2018 Fabian Wenzelmann
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tilemosaic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/nfnt/resize"
)

var (
	// ErrCmdSyntaxErr is returned by a CommandFunc if the syntax for the command
	// is invalid.
	ErrCmdSyntaxErr = errors.New("invalid command syntax")
)

// ExecutorState is the state during a command execution, see CommandHandler
// for the workflow.
//
// The variables in the state are shared among the executions of the command
// functions.
type ExecutorState struct {
	// WorkingDir is the current directory. It must always be an absolute path.
	WorkingDir string

	// Storage is the tile library, nil until "storage load" was executed.
	Storage *FSTileStore

	// Index is the color index for Storage. Whenever the storage changes it
	// becomes invalid (set to nil again) and must be recreated or loaded.
	Index *ColorIndex

	// Config contains the variables that can be changed via "set".
	Config Config

	// Verbose is true if detailed output should be generated.
	Verbose bool

	// In is the source to read commands from (line by line).
	In io.Reader

	// Out is used to write state information.
	Out io.Writer

	cache          *TileCache
	cacheFootprint int
	cacheInterP    resize.InterpolationFunction
}

// NewExecutorState returns a state with the default config. The working
// directory is the current directory.
func NewExecutorState(in io.Reader, out io.Writer) (*ExecutorState, error) {
	dir, err := filepath.Abs(".")
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve path: %w", err)
	}
	return &ExecutorState{
		WorkingDir: dir,
		Config:     DefaultConfig(),
		Verbose:    true,
		In:         in,
		Out:        out,
	}, nil
}

// GetPath returns the absolute path given some other path.
// Relative paths are interpreted relative to the working directory, the
// home directory can be used like on Unix: ~/Pictures is the Pictures
// directory in the home directory of the user.
func (state *ExecutorState) GetPath(path string) (string, error) {
	res, pathErr := homedir.Expand(path)
	if pathErr != nil {
		return "", pathErr
	}
	if !filepath.IsAbs(res) {
		res = filepath.Join(state.WorkingDir, res)
	}
	return filepath.Abs(res)
}

// TileCache returns the cache of resized tiles. A new cache is created if
// the storage, the footprint or the interpolation function changed.
func (state *ExecutorState) TileCache() *TileCache {
	if state.cache == nil || state.cacheFootprint != state.Config.Footprint ||
		state.cacheInterP != state.Config.InterP {
		state.cache = NewTileCache(state.Storage, NewNfntResizer(state.Config.InterP))
		state.cacheFootprint = state.Config.Footprint
		state.cacheInterP = state.Config.InterP
	}
	return state.cache
}

func (state *ExecutorState) setStorage(storage *FSTileStore) {
	state.Storage = storage
	state.Index = nil
	state.cache = nil
}

// CommandFunc is a function that is applied to the current states and
// arguments to that command.
type CommandFunc func(state *ExecutorState, args ...string) error

// Command a command consists of a function to actually execute the command
// and some information about the command.
type Command struct {
	Exec        CommandFunc
	Usage       string
	Description string
}

// CommandMap maps command names to Commands.
type CommandMap map[string]Command

// DefaultCommands contains all commands for mosaic generation.
var DefaultCommands CommandMap

// CommandHandler together with Execute implements a command execution loop.
// CommandFuncs are applied to the current state until there are no more
// commands to execute (no more input).
//
// A command has the form "COMMAND ARG1 ... ARGN", see ParseCommand.
//
// Execute reads all lines from the state's reader, parses them, looks up the
// command and executes it. After each line After is called.
// OnError is called if a line can't be parsed, the command is unknown or
// the command returns an error; cmd is nil in the first two cases. If it
// returns false the execution stops.
type CommandHandler interface {
	Start(s *ExecutorState)
	After(s *ExecutorState)
	OnError(s *ExecutorState, err error, cmd *Command) bool
	OnScanErr(s *ExecutorState, err error)
}

// Execute implements the execution loop as described in the documentation
// of CommandHandler. commandMap is used to lookup commands.
func Execute(state *ExecutorState, handler CommandHandler, commandMap CommandMap) {
	handler.Start(state)
	scanner := bufio.NewScanner(state.In)
	for scanner.Scan() {
		if !executeLine(state, handler, commandMap, scanner.Text()) {
			return
		}
		handler.After(state)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		handler.OnScanErr(state, scanErr)
	}
}

func executeLine(state *ExecutorState, handler CommandHandler, commandMap CommandMap, line string) bool {
	parsed, parseErr := ParseCommand(line)
	if parseErr != nil {
		return handler.OnError(state, parseErr, nil)
	}
	if len(parsed) == 0 || strings.HasPrefix(parsed[0], "#") {
		return true
	}
	cmd, ok := commandMap[parsed[0]]
	if !ok {
		return handler.OnError(state, fmt.Errorf("invalid command %q", parsed[0]), nil)
	}
	if err := cmd.Exec(state, parsed[1:]...); err != nil {
		return handler.OnError(state, err, &cmd)
	}
	return true
}

// ParseCommand parses a command of the form "COMMAND ARG1 ... ARGN".
// Arguments are separated by spaces. An argument enclosed in quotes may
// contain spaces, so foo "bar bar" is the command foo with the single argument
// bar bar. Inside and outside of quotes \" and \\ are used for a quote and a
// backslash.
func ParseCommand(s string) ([]string, error) {
	parseErr := errors.New("error parsing command line")
	res := make([]string, 0)
	var current strings.Builder
	inArg, quoted, escaped := false, false, false
	for _, r := range s {
		switch {
		case escaped:
			if r != '\\' && r != '"' {
				return nil, parseErr
			}
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, inArg = true, true
		case r == '"' && quoted:
			// closing quote must end the argument
			res = append(res, current.String())
			current.Reset()
			quoted, inArg = false, false
		case r == '"':
			if inArg {
				return nil, parseErr
			}
			quoted, inArg = true, true
		case (r == ' ' || r == '\t') && !quoted:
			if inArg {
				res = append(res, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if escaped || quoted {
		return nil, parseErr
	}
	if inArg {
		res = append(res, current.String())
	}
	return res, nil
}

// PwdCommand is a command that prints the current working directory.
func PwdCommand(state *ExecutorState, args ...string) error {
	fmt.Fprintln(state.Out, state.WorkingDir)
	return nil
}

// CdCommand is a command that changes the current directory.
func CdCommand(state *ExecutorState, args ...string) error {
	if len(args) != 1 {
		return ErrCmdSyntaxErr
	}
	path, pathErr := state.GetPath(args[0])
	if pathErr != nil {
		return fmt.Errorf("changing directory failed: %w", pathErr)
	}
	fi, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Errorf("changing directory failed: %w", statErr)
	}
	if !fi.IsDir() {
		return fmt.Errorf("changing directory failed: %q is not a directory", path)
	}
	state.WorkingDir = path
	return nil
}

// StatsCommand is a command that prints variable / value pairs.
func StatsCommand(state *ExecutorState, args ...string) error {
	vars := state.Config.Vars()
	vars["verbose"] = strconv.FormatBool(state.Verbose)
	if len(args) == 1 {
		val, has := vars[args[0]]
		if !has {
			return fmt.Errorf("%w: %s", ErrUnknownVar, args[0])
		}
		fmt.Fprintf(state.Out, "%s ==> %s\n", args[0], val)
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(state.Out, "%s ==> %s\n", k, vars[k])
	}
	return nil
}

// SetVarCommand sets a variable to a new value, see Config.Set.
func SetVarCommand(state *ExecutorState, args ...string) error {
	if len(args) != 2 {
		return errors.New("invalid set syntax: requires variable and value, for a list of variables use \"stats\"")
	}
	if args[0] == "verbose" {
		val, parseErr := strconv.ParseBool(args[1])
		if parseErr != nil {
			return fmt.Errorf("invalid value for verbose (must be true or false): %w", parseErr)
		}
		state.Verbose = val
		return nil
	}
	return state.Config.Set(args[0], args[1])
}

// StorageCommand administrates the tile library.
// Without arguments it prints the number of tiles, "storage list" prints
// all tiles and "storage load [dir] [recursive]" loads all images from
// the directory (working directory by default).
func StorageCommand(state *ExecutorState, args ...string) error {
	switch {
	case len(args) == 0:
		fmt.Fprintln(state.Out, "Number of tiles:", numTiles(state))
		return nil
	case args[0] == "list":
		if state.Storage != nil {
			for _, path := range state.Storage.Paths {
				fmt.Fprintf(state.Out, "  %s\n", path)
			}
		}
		fmt.Fprintln(state.Out, "Total:", numTiles(state))
		return nil
	case args[0] == "load" && len(args) <= 3:
		dir := state.WorkingDir
		recursive := false
		if len(args) == 3 {
			var boolErr error
			if recursive, boolErr = strconv.ParseBool(args[2]); boolErr != nil {
				return boolErr
			}
		}
		if len(args) >= 2 {
			var pathErr error
			if dir, pathErr = state.GetPath(args[1]); pathErr != nil {
				return pathErr
			}
		}
		fmt.Fprintln(state.Out, "Loading tiles from", dir)
		storage, loadErr := GenFSTileStore(dir, recursive, DefaultImageFilter)
		if loadErr != nil {
			return loadErr
		}
		state.setStorage(storage)
		fmt.Fprintln(state.Out, "Successfully read", storage.NumTiles(), "tiles")
		fmt.Fprintln(state.Out, "Don't forget to create or load the color index!")
		return nil
	default:
		return ErrCmdSyntaxErr
	}
}

func numTiles(state *ExecutorState) int {
	if state.Storage == nil {
		return 0
	}
	return int(state.Storage.NumTiles())
}

// IndexCommand creates, saves and loads the color index.
func IndexCommand(state *ExecutorState, args ...string) error {
	if len(args) == 0 {
		if state.Index == nil {
			fmt.Fprintln(state.Out, "No color index, use \"index create\" or \"index load\"")
		} else {
			fmt.Fprintln(state.Out, "Indexed tiles:", state.Index.Len())
		}
		return nil
	}
	if state.Storage == nil {
		return errors.New("no tiles in storage, use \"storage load\"")
	}
	switch {
	case args[0] == "create" && len(args) == 1:
		var progress ProgressFunc
		if state.Verbose {
			total := numTiles(state)
			progress = StdProgressFunc(state.Out, "Indexing", total, ProgressStep(total))
		}
		index, err := BuildColorIndex(state.Storage, state.Config.NumRoutines, progress)
		if err != nil {
			return err
		}
		state.Index = index
		fmt.Fprintf(state.Out, "Indexed %d tiles, skipped %d\n", index.Len(), len(index.Skipped()))
		return nil
	case args[0] == "save" && len(args) == 2:
		if state.Index == nil {
			return errors.New("no color index, use \"index create\" or \"index load\"")
		}
		path, pathErr := state.GetPath(args[1])
		if pathErr != nil {
			return pathErr
		}
		if err := IndexFileFromIndex(state.Index).WriteFile(path); err != nil {
			return err
		}
		fmt.Fprintln(state.Out, "Index saved to", path)
		return nil
	case args[0] == "load" && len(args) == 2:
		path, pathErr := state.GetPath(args[1])
		if pathErr != nil {
			return pathErr
		}
		var f IndexFile
		if err := f.ReadFile(path); err != nil {
			return err
		}
		index, missing := f.Index(state.Storage)
		state.Index = index
		fmt.Fprintln(state.Out, "Indexed tiles:", index.Len())
		if len(missing) > 0 {
			fmt.Fprintf(state.Out, "%d tiles have no entry in the index file, use \"index create\" to include them\n",
				len(missing))
		}
		return nil
	case args[0] == "skipped" && len(args) == 1:
		if state.Index == nil {
			return errors.New("no color index, use \"index create\"")
		}
		for _, skipped := range state.Index.Skipped() {
			fmt.Fprintf(state.Out, "  %s: %s\n", skipped.Name, skipped.Reason)
		}
		return nil
	default:
		return ErrCmdSyntaxErr
	}
}

func requireIndex(state *ExecutorState) error {
	if state.Storage == nil {
		return errors.New("no tiles in storage, use \"storage load\"")
	}
	if state.Index == nil {
		return errors.New("no color index, use \"index create\" or \"index load\"")
	}
	return nil
}

// MosaicCommand creates a mosaic image. Usage: mosaic in.jpg out.png
func MosaicCommand(state *ExecutorState, args ...string) error {
	if len(args) != 2 {
		return ErrCmdSyntaxErr
	}
	if err := requireIndex(state); err != nil {
		return err
	}
	inPath, inErr := state.GetPath(args[0])
	if inErr != nil {
		return inErr
	}
	outPath, outErr := state.GetPath(args[1])
	if outErr != nil {
		return outErr
	}
	var opts RunOptions
	if state.Verbose {
		fmt.Fprintln(state.Out, "Composing mosaic for", inPath)
		opts.Progress = StdProgressFunc(state.Out, "", state.Config.Iterations,
			ProgressStep(state.Config.Iterations))
	}
	stats, err := GenerateFile(inPath, outPath, state.Index, state.TileCache(), state.Config, opts)
	if err != nil {
		return err
	}
	if state.Verbose {
		fmt.Fprintf(state.Out, "Placed %d tiles (%d transparent samples, %d failed)\n",
			stats.Placed, stats.Transparent, stats.TileErrors)
	}
	fmt.Fprintln(state.Out, "Mosaic saved to", outPath)
	return nil
}

// LayoutCommand writes the grid layout as json.
// Usage: layout in.png out.json [step]
func LayoutCommand(state *ExecutorState, args ...string) error {
	if len(args) < 2 || len(args) > 3 {
		return ErrCmdSyntaxErr
	}
	if err := requireIndex(state); err != nil {
		return err
	}
	step := 1
	if len(args) == 3 {
		var stepErr error
		if step, stepErr = parsePositive("step", args[2]); stepErr != nil {
			return stepErr
		}
	}
	inPath, inErr := state.GetPath(args[0])
	if inErr != nil {
		return inErr
	}
	outPath, outErr := state.GetPath(args[1])
	if outErr != nil {
		return outErr
	}
	layout, err := WriteLayout(inPath, outPath, state.Index, step, state.Config.Scale)
	if err != nil {
		return err
	}
	fmt.Fprintf(state.Out, "Layout with %d placements saved to %s\n", len(layout.Placements), outPath)
	return nil
}

func init() {
	DefaultCommands = make(CommandMap, 10)
	DefaultCommands["pwd"] = Command{
		Exec:        PwdCommand,
		Usage:       "pwd",
		Description: "Show current working directory.",
	}
	DefaultCommands["cd"] = Command{
		Exec:        CdCommand,
		Usage:       "cd <dir>",
		Description: "Change working directory to the specified directory.",
	}
	DefaultCommands["stats"] = Command{
		Exec:        StatsCommand,
		Usage:       "stats [var]",
		Description: "Show value of variables that can be changed via set, if var is given only value of that variable.",
	}
	DefaultCommands["set"] = Command{
		Exec:  SetVarCommand,
		Usage: "set <variable> <value>",
		Description: "Set value for a variable. Variables: verbose " +
			strings.Join(VarNames(), " "),
	}
	DefaultCommands["storage"] = Command{
		Exec:  StorageCommand,
		Usage: "storage [list] or storage load [dir] [recursive]",
		Description: "Controls the tile library. If \"list\" is used all tiles are" +
			" printed. If \"load\" is used the library is initialized with all images" +
			" from the directory (working directory if no directory is given).",
	}
	DefaultCommands["index"] = Command{
		Exec:  IndexCommand,
		Usage: "index [create | save <file> | load <file> | skipped]",
		Description: "Administrates the color index. \"create\" computes the average color" +
			" of all tiles, \"save\" and \"load\" store and read precomputed colors" +
			" (.json or .gob, optionally followed by .zst). \"skipped\" lists tiles" +
			" that could not be indexed.",
	}
	DefaultCommands["mosaic"] = Command{
		Exec:  MosaicCommand,
		Usage: "mosaic <in> <out>",
		Description: "Creates a mosaic for the query image in and writes it to out" +
			" (.png, .jpg or .gif for gif queries).",
	}
	DefaultCommands["layout"] = Command{
		Exec:  LayoutCommand,
		Usage: "layout <in> <out.json> [step]",
		Description: "Computes the best tile for every step-th pixel of in and writes" +
			" the placements as json.",
	}
}

// ReplHandler implements CommandHandler for interactive sessions, errors are
// printed and the execution continues.
type ReplHandler struct{}

func (h ReplHandler) Start(s *ExecutorState) {
	fmt.Fprintln(s.Out, "Welcome to the tile mosaic generator")
	fmt.Fprint(s.Out, ">>> ")
}

func (h ReplHandler) After(s *ExecutorState) {
	fmt.Fprint(s.Out, ">>> ")
}

func (h ReplHandler) OnError(s *ExecutorState, err error, cmd *Command) bool {
	if cmd != nil && errors.Is(err, ErrCmdSyntaxErr) {
		fmt.Fprintln(s.Out, "Invalid syntax for command.")
		fmt.Fprintln(s.Out, "Usage:", cmd.Usage)
	} else {
		fmt.Fprintln(s.Out, "Error:", err)
	}
	return true
}

func (h ReplHandler) OnScanErr(s *ExecutorState, err error) {
	fmt.Fprintln(s.Out, "Error while reading:", err)
}

// ScriptHandler implements CommandHandler for scripts, it stops whenever an
// error is encountered. Errors are written to Err.
type ScriptHandler struct {
	Err io.Writer
	// Failed is set to true if the script was aborted.
	Failed bool
}

// NewScriptHandler returns a handler that writes errors to err.
func NewScriptHandler(err io.Writer) *ScriptHandler {
	return &ScriptHandler{Err: err}
}

func (h *ScriptHandler) Start(s *ExecutorState) {}

func (h *ScriptHandler) After(s *ExecutorState) {}

func (h *ScriptHandler) OnError(s *ExecutorState, err error, cmd *Command) bool {
	h.Failed = true
	if cmd != nil && errors.Is(err, ErrCmdSyntaxErr) {
		fmt.Fprintln(h.Err, "Error: invalid syntax for command, usage:", cmd.Usage)
	} else {
		fmt.Fprintln(h.Err, "Error:", err)
	}
	return false
}

func (h *ScriptHandler) OnScanErr(s *ExecutorState, err error) {
	h.Failed = true
	fmt.Fprintln(h.Err, "Error while reading:", err)
}

// Parameterized is used to transform parameterized scripts into executable
// commands, that means replacing variables $i with the provided argument.
// Example: The command "index load $1" can be called with one argument that
// replaces the placeholder $1.
func Parameterized(r io.Reader, args ...string) (io.Reader, error) {
	// replace $10 before $1
	replaceArgs := make([]string, 0, 2*len(args))
	for i := len(args) - 1; i >= 0; i-- {
		replaceArgs = append(replaceArgs, fmt.Sprintf("$%d", i+1), args[i])
	}
	replacer := strings.NewReplacer(replaceArgs...)
	lines := make([]string, 0, 20)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, replacer.Replace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return strings.NewReader(strings.Join(lines, "\n")), nil
}
