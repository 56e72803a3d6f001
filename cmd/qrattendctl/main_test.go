package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnrollRequiresFlags(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"enroll", "institution", "--name", "One"}, want: `"code"`},
		{args: []string{"enroll", "teacher", "--institution", "INST1", "--id", "t-1"}, want: `"name"`},
		{args: []string{"enroll", "student", "--id", "s-1", "--name", "S"}, want: `"institution"`},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Execute() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestOptionalHash(t *testing.T) {
	if h, err := optionalHash(""); err != nil || h != "" {
		t.Fatalf("optionalHash(\"\") = %q, %v", h, err)
	}
	if _, err := optionalHash("short"); err == nil {
		t.Fatal("short password accepted")
	}
	h, err := optionalHash("long-enough")
	if err != nil || !strings.HasPrefix(h, "$2") {
		t.Fatalf("optionalHash() = %q, %v", h, err)
	}
}
