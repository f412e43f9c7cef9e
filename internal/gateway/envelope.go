package gateway

import (
	"strconv"
	"time"
)

// appendEnvelope writes {"type":..,"seq":..,"ts":..,"data":..} to buf.
// data must already be valid JSON.
func appendEnvelope(buf []byte, kind string, data []byte, now time.Time, seq int64) []byte {
	if buf == nil {
		buf = make([]byte, 0, len(kind)+len(data)+96)
	}
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}
