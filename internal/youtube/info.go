package youtube

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marmobot/internal/core"
)

// videoInfo is the subset of yt-dlp's JSON output the bot reads.
type videoInfo struct {
	Type       string       `json:"_type"`
	ID         string       `json:"id"`
	WebpageURL string       `json:"webpage_url"`
	Title      string       `json:"title"`
	Duration   float64      `json:"duration"`
	Thumbnail  string       `json:"thumbnail"`
	IsLive     bool         `json:"is_live"`
	LiveStatus string       `json:"live_status"`
	Formats    []formatInfo `json:"formats"`
}

type formatInfo struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	ACodec   string  `json:"acodec"`
	ABR      float64 `json:"abr"`
	TBR      float64 `json:"tbr"`
}

type searchResult struct {
	Entries []videoInfo `json:"entries"`
}

func parseInfo(data []byte) (*core.MediaInfo, error) {
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding yt-dlp output: %w", err)
	}
	return info.toMediaInfo()
}

func (v videoInfo) toMediaInfo() (*core.MediaInfo, error) {
	if v.Type == "playlist" {
		return nil, errors.New("expected a single video, got a playlist")
	}
	if v.ID == "" {
		return nil, errors.New("yt-dlp output has no video id")
	}

	info := &core.MediaInfo{
		ID:           v.ID,
		WebpageURL:   v.WebpageURL,
		Title:        v.Title,
		Duration:     time.Duration(v.Duration * float64(time.Second)),
		ThumbnailURL: v.Thumbnail,
		IsLive:       v.IsLive || v.LiveStatus == "is_live" || v.LiveStatus == "is_upcoming",
	}
	if info.WebpageURL == "" {
		info.WebpageURL = watchURLPrefix + v.ID
	}

	for _, f := range v.Formats {
		if f.URL == "" {
			continue
		}
		info.Formats = append(info.Formats, core.MediaFormat{
			FormatID:     f.FormatID,
			URL:          f.URL,
			AudioCodec:   f.ACodec,
			AudioBitrate: f.ABR,
			TotalBitrate: f.TBR,
		})
	}
	return info, nil
}
