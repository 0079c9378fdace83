package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"stm32drive/core"
	"stm32drive/host/drive"
)

// recorder implements controller and logs each call
type recorder struct {
	calls []string
	err   error
}

func (r *recorder) log(format string, args ...any) error {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recorder) ConfigDriver(timer int) error { return r.log("config %d", timer) }
func (r *recorder) Release() error               { return r.log("release") }
func (r *recorder) Attach(id core.Identity, ch core.Channel) error {
	return r.log("attach %c %d", id, ch)
}
func (r *recorder) Detach(ch core.Channel) error { return r.log("detach %d", ch) }
func (r *recorder) Lookup(id core.Identity) (core.Channel, error) {
	return 2, r.log("lookup %c", id)
}
func (r *recorder) StartAll() error               { return r.log("start_all") }
func (r *recorder) StopAll() error                { return r.log("stop_all") }
func (r *recorder) StartPWM(ch core.Channel) error { return r.log("start %d", ch) }
func (r *recorder) StopPWM(ch core.Channel) error  { return r.log("stop %d", ch) }
func (r *recorder) WriteDuty(ch core.Channel, duty float32) error {
	return r.log("duty %d %.3f", ch, duty)
}
func (r *recorder) ServoWrite(id core.Identity, degrees int) error {
	return r.log("servo %c %d", id, degrees)
}
func (r *recorder) MotorWrite(id core.Identity, power int) error {
	return r.log("motor %c %d", id, power)
}
func (r *recorder) PWMTest() error { return r.log("test") }
func (r *recorder) Status() (drive.Status, error) {
	return drive.Status{Timer: 2, Identities: [4]core.Identity{'S'}}, r.log("status")
}

func TestShellCommands(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer
	sh := &shell{ctl: rec, out: &out}

	input := strings.Join([]string{
		"timer 2",
		"attach S 1",
		"attach 'M' 3",
		"start",
		"start 3",
		"servo S 90",
		"motor M 55",
		"duty 4 7.25",
		"lookup S",
		"stop 1",
		"stop",
		"detach 3",
		"test",
		"status",
		"release",
		"quit",
		"timer 9",
	}, "\n")
	if err := sh.run(strings.NewReader(input)); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"config 2",
		"attach S 1",
		"attach M 3",
		"start_all",
		"start 3",
		"servo S 90",
		"motor M 55",
		"duty 4 7.250",
		"lookup S",
		"stop 1",
		"stop_all",
		"detach 3",
		"test",
		"status",
		"release",
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls %q, want %q", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i], want[i])
		}
	}
	if !strings.Contains(out.String(), "S -> channel 2") {
		t.Errorf("lookup output missing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "tim2 ch1=S ch2=- ch3=- ch4=-") {
		t.Errorf("status output missing:\n%s", out.String())
	}
}

func TestShellUsageErrors(t *testing.T) {
	cases := [][]string{
		{"attach", "S"},
		{"attach", "servo", "1"},
		{"attach", "S", "x"},
		{"timer"},
		{"duty", "1", "abc"},
		{"servo", "S", "ninety"},
		{"start", "1", "2"},
		{"bogus"},
	}
	for _, args := range cases {
		rec := &recorder{}
		sh := &shell{ctl: rec, out: &bytes.Buffer{}}
		if err := sh.exec(args); err == nil {
			t.Errorf("%q: expected error", args)
		}
		if len(rec.calls) != 0 {
			t.Errorf("%q: controller called %q", args, rec.calls)
		}
	}
}

func TestShellReportsDriverErrors(t *testing.T) {
	rec := &recorder{err: core.ErrIdentityNotFound}
	var out bytes.Buffer
	sh := &shell{ctl: rec, out: &out}

	if err := sh.run(strings.NewReader("motor X 50\nlookup X\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Error: identity not attached") {
		t.Errorf("missing error output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "X is not attached") {
		t.Errorf("missing lookup output:\n%s", out.String())
	}
}

func TestShellQuoting(t *testing.T) {
	rec := &recorder{}
	sh := &shell{ctl: rec, out: &bytes.Buffer{}}
	if err := sh.run(strings.NewReader("attach \"A\" 2\nattach 'unterminated\n")); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "attach A 2" {
		t.Errorf("calls %q", rec.calls)
	}
}
