package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"stm32drive/core"
	"stm32drive/host/drive"
)

// controller is the part of drive.Controller the shell uses
type controller interface {
	ConfigDriver(timer int) error
	Release() error
	Attach(id core.Identity, ch core.Channel) error
	Detach(ch core.Channel) error
	Lookup(id core.Identity) (core.Channel, error)
	StartAll() error
	StopAll() error
	StartPWM(ch core.Channel) error
	StopPWM(ch core.Channel) error
	WriteDuty(ch core.Channel, duty float32) error
	ServoWrite(id core.Identity, degrees int) error
	MotorWrite(id core.Identity, power int) error
	PWMTest() error
	Status() (drive.Status, error)
}

var errQuit = errors.New("quit")

type shell struct {
	ctl     controller
	out     io.Writer
	verbose bool
}

type usageError string

func (e usageError) Error() string {
	return "usage: " + string(e)
}

// run reads commands until EOF or quit
func (s *shell) run(in io.Reader) error {
	fmt.Fprintln(s.out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if err := s.exec(args); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

// exec runs one tokenised command line
func (s *shell) exec(args []string) error {
	cmd, args := args[0], args[1:]
	if s.verbose {
		log.Printf("> %s %s", cmd, strings.Join(args, " "))
	}

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		s.printHelp()
		return nil

	case "timer":
		if len(args) != 1 {
			return usageError("timer N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad timer %q", args[0])
		}
		return s.done(s.ctl.ConfigDriver(n))

	case "release":
		return s.done(s.ctl.Release())

	case "attach":
		if len(args) != 2 {
			return usageError("attach ID CH")
		}
		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		ch, err := parseChannel(args[1])
		if err != nil {
			return err
		}
		return s.done(s.ctl.Attach(id, ch))

	case "detach":
		if len(args) != 1 {
			return usageError("detach CH")
		}
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		return s.done(s.ctl.Detach(ch))

	case "lookup":
		if len(args) != 1 {
			return usageError("lookup ID")
		}
		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		ch, err := s.ctl.Lookup(id)
		if errors.Is(err, core.ErrIdentityNotFound) {
			fmt.Fprintf(s.out, "%c is not attached\n", id)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%c -> channel %d\n", id, ch)
		return nil

	case "start", "stop":
		if len(args) > 1 {
			return usageError(cmd + " [CH]")
		}
		if len(args) == 0 {
			if cmd == "start" {
				return s.done(s.ctl.StartAll())
			}
			return s.done(s.ctl.StopAll())
		}
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		if cmd == "start" {
			return s.done(s.ctl.StartPWM(ch))
		}
		return s.done(s.ctl.StopPWM(ch))

	case "duty":
		if len(args) != 2 {
			return usageError("duty CH VALUE")
		}
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(args[1], 32)
		if err != nil {
			return fmt.Errorf("bad duty %q", args[1])
		}
		return s.done(s.ctl.WriteDuty(ch, float32(v)))

	case "servo", "motor":
		if len(args) != 2 {
			return usageError(cmd + " ID VALUE")
		}
		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad value %q", args[1])
		}
		if cmd == "servo" {
			return s.done(s.ctl.ServoWrite(id, v))
		}
		return s.done(s.ctl.MotorWrite(id, v))

	case "test":
		fmt.Fprintln(s.out, "Sweeping duty on all attached channels...")
		return s.done(s.ctl.PWMTest())

	case "status":
		st, err := s.ctl.Status()
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, st)
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func (s *shell) done(err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "ok")
	return nil
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `
Available commands:
  timer N          - Create the driver on TIMn (1-14)
  release          - Stop all channels and destroy the driver
  attach ID CH     - Attach identity ID to channel CH (1-4)
  detach CH        - Detach channel CH
  lookup ID        - Show the channel ID is attached to
  start [CH]       - Start PWM on CH, or on every attached channel
  stop [CH]        - Stop PWM on CH, or on every attached channel
  duty CH VALUE    - Write a raw compare value
  servo ID DEG     - Move servo ID to DEG (0-180)
  motor ID PWR     - Drive motor ID at PWR percent (0-100)
  test             - Sweep duty 0-99 on attached channels (about 5s)
  status           - Show the channel table
  quit/exit/q      - Exit the program

`)
}

func parseIdentity(s string) (core.Identity, error) {
	if len(s) != 1 {
		return core.NoIdentity, fmt.Errorf("identity must be one character, got %q", s)
	}
	return core.Identity(s[0]), nil
}

func parseChannel(s string) (core.Channel, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return core.NoChannel, fmt.Errorf("bad channel %q", s)
	}
	return core.Channel(n), nil
}
