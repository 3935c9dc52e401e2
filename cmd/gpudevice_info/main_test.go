package main

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gomlx/gpudevice/gpu/gputest"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// All tests use 2 fake devices: the property cache is discovered once per process.
const numFakeDevices = 2

func TestBuildReport(t *testing.T) {
	rt := gputest.New(numFakeDevices)
	report, err := buildReport(rt, -1, true)
	require.NoError(t, err)
	require.Equal(t, "fake", report.Runtime)
	require.Equal(t, numFakeDevices, report.NumDevices)
	require.Len(t, report.Devices, numFakeDevices)
	for ii, info := range report.Devices {
		require.Equal(t, ii, info.Device)
		require.Equal(t, gputest.DefaultProperties(ii), info.Properties)
		require.Equal(t, 32, info.NumThreads)
		require.NotNil(t, info.Probe)
		require.True(t, info.Probe.Ok)
	}
	// Scratchpads were freed.
	require.Equal(t, 0, rt.LiveAllocations())
	require.Equal(t, numFakeDevices, rt.CountCalls(gputest.OpMemsetAsync))

	report, err = buildReport(rt, 1, false)
	require.NoError(t, err)
	require.Len(t, report.Devices, 1)
	require.Equal(t, 1, report.Devices[0].Device)
	require.Nil(t, report.Devices[0].Probe)

	_, err = buildReport(rt, numFakeDevices, false)
	require.ErrorContains(t, err, "only 2 devices are available")
}

func TestWriteReport(t *testing.T) {
	report, err := buildReport(gputest.New(numFakeDevices), -1, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, report, "text"))
	text := buf.String()
	require.Contains(t, text, "fake runtime: 2 device(s)")
	require.Contains(t, text, "Device #1: Fake GPU #1")
	require.Contains(t, text, "Global memory:             16 GiB")
	require.Contains(t, text, "max blocks unbounded")

	buf.Reset()
	require.NoError(t, writeReport(&buf, report, "json"))
	var fromJSON Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	require.Equal(t, *report, fromJSON)

	buf.Reset()
	require.NoError(t, writeReport(&buf, report, "yaml"))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Equal(t, *report, fromYAML)
	require.Contains(t, buf.String(), "multi_processor_count: 81")

	require.ErrorContains(t, writeReport(&buf, report, "xml"), "unknown -format")
}
