package media

import (
	"regexp"
	"strconv"
)

var (
	encodeTimeRe    = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
	downloadPctRe   = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)
	vmafScoreRe     = regexp.MustCompile(`VMAF score: (\d+\.\d+)`)
	ytdlpErrorRe    = regexp.MustCompile(`(?i)ERROR[:\s]+(.+)`)
	ffmpegOutTimeRe = regexp.MustCompile(`out_time_ms=(\d+)`)
)

// EncodeProgress matches ffmpeg's time=HH:MM:SS.cc marker against the input's
// total duration. Pure so it can be tested against captured output without
// running ffmpeg. Returns ok=false when the line carries no time marker or
// the duration is unknown.
func EncodeProgress(line string, totalDuration float64) (percent float64, ok bool) {
	if totalDuration <= 0 {
		return 0, false
	}
	m := encodeTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	cs, _ := strconv.Atoi(m[4])
	elapsed := float64(h*3600+min*60+s) + float64(cs)/100
	percent = elapsed / totalDuration * 100
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// DownloadProgress extracts yt-dlp's self-reported "[download]  NN.N%" token.
func DownloadProgress(line string) (percent float64, ok bool) {
	m := downloadPctRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// VMAFScore extracts libvmaf's final score line.
func VMAFScore(line string) (score string, ok bool) {
	m := vmafScoreRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ToolError pulls the first "ERROR: ..." message out of yt-dlp output, for a
// friendlier failure description than a bare exit code.
func ToolError(output string) (msg string, ok bool) {
	m := ytdlpErrorRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ConcatProgress matches ffmpeg's -progress out_time_ms counter used by the
// concat merge path.
func ConcatProgress(line string) (outTimeMs int64, ok bool) {
	m := ffmpegOutTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}
