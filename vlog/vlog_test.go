package vlog

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestDepthIndentsMessage(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	base.SetLevel(logrus.DebugLevel)

	root := New(base, "validator")
	child := root.WithDepth(2)

	root.Info("starting")
	child.Info("resuming")

	out := buf.String()
	require.Contains(t, out, "component=validator")
	require.Contains(t, out, "msg=starting")
	require.Contains(t, out, `msg="    resuming"`)
}

func TestWithFieldsPreservesDepth(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	l := New(base, "validator").WithDepth(1).WithFields(logrus.Fields{"name": "example.com."})
	l.Warn("must-be-secure downgrade")

	require.Contains(t, buf.String(), `name=example.com.`)
	require.Contains(t, buf.String(), `msg="  must-be-secure downgrade"`)
}
