package trace

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordNumericFields(t *testing.T) {
	line := []byte(`{"operation":"write","key":"AQI=","value":"AwQ=","metadata":{"blockHeight":100},"blockTimeUnixMs":1700000000000}`)
	rec, err := ParseRecord(line)
	require.NoError(t, err)
	require.Equal(t, OpWrite, rec.Operation)
	require.Equal(t, uint64(100), rec.BlockHeight)
	require.Equal(t, uint64(1700000000000), rec.BlockTimeUnixMs)
	require.Equal(t, []byte{1, 2}, rec.Key)
	require.Equal(t, []byte{3, 4}, rec.Value)
}

func TestParseRecordStringFields(t *testing.T) {
	line := []byte(`{"operation":"delete","key":"AQI=","value":"","metadata":{"blockHeight":"101"},"blockTimeUnixMs":"1700000000001"}`)
	rec, err := ParseRecord(line)
	require.NoError(t, err)
	require.Equal(t, OpDelete, rec.Operation)
	require.Equal(t, uint64(101), rec.BlockHeight)
	require.Empty(t, rec.Value)
}

func TestParseRecordRejectsBadOperation(t *testing.T) {
	line := []byte(`{"operation":"patch","key":"AQI=","metadata":{"blockHeight":1}}`)
	_, err := ParseRecord(line)
	require.Error(t, err)
}

func TestParseRecordRejectsBadBase64(t *testing.T) {
	line := []byte(`{"operation":"write","key":"not-base64!!","metadata":{"blockHeight":1}}`)
	_, err := ParseRecord(line)
	require.Error(t, err)
}

func TestBase64RoundTrip(t *testing.T) {
	require.Equal(t, "AQI=", base64.StdEncoding.EncodeToString([]byte{1, 2}))
}
