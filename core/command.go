package core

import "errors"

// CommandHandler decodes its own arguments from args and runs the command
type CommandHandler func(args *[]byte) error

// Command is one entry of the command dictionary
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "identity=%c channel=%c"
	Handler CommandHandler
}

// CommandRegistry maps command IDs to handlers.
// Responses are registered with a nil handler so they show up in the dictionary.
type CommandRegistry struct {
	commands map[uint16]*Command
	nameToID map[string]uint16
	order    []uint16
}

var errUnknownCommand = errors.New("unknown command")

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command under a fixed ID. Registering the same name again
// replaces its handler and keeps the original ID.
func (r *CommandRegistry) Register(id uint16, name, format string, handler CommandHandler) uint16 {
	if existing, ok := r.nameToID[name]; ok {
		r.commands[existing].Handler = handler
		r.commands[existing].Format = format
		return existing
	}
	r.commands[id] = &Command{ID: id, Name: name, Format: format, Handler: handler}
	r.nameToID[name] = id
	r.order = append(r.order, id)
	return id
}

// RegisterResponse adds a device-to-host message to the dictionary
func (r *CommandRegistry) RegisterResponse(id uint16, name, format string) uint16 {
	return r.Register(id, name, format, nil)
}

// Lookup returns the command registered under id
func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	cmd, ok := r.commands[id]
	return cmd, ok
}

// LookupName returns the command registered under name
func (r *CommandRegistry) LookupName(name string) (*Command, bool) {
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands and responses
func (r *CommandRegistry) Count() int {
	return len(r.commands)
}

// Dispatch runs the handler for id
func (r *CommandRegistry) Dispatch(id uint16, args *[]byte) error {
	cmd, ok := r.commands[id]
	if !ok || cmd.Handler == nil {
		return &CommandError{ID: id, Err: errUnknownCommand}
	}
	return cmd.Handler(args)
}

// Dictionary lists every entry as "id name format" lines in registration order
func (r *CommandRegistry) Dictionary() string {
	dict := ""
	for _, id := range r.order {
		cmd := r.commands[id]
		dict += itoa(int(cmd.ID)) + " " + cmd.Name
		if cmd.Format != "" {
			dict += " " + cmd.Format
		}
		dict += "\n"
	}
	return dict
}

// CommandError wraps a failure while dispatching a command
type CommandError struct {
	ID  uint16
	Err error
}

func (e *CommandError) Error() string {
	return "command " + itoa(int(e.ID)) + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
