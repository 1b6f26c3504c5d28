// Package resolver turns identifiers (YouTube URLs, playlist URLs,
// free-text queries, bare media links) into playable track descriptors.
// Resolution does network I/O and must never run under an engine lock.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/music/track"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

const playlistLimit = 10

var (
	ErrNoResults      = errors.New("no results for query")
	ErrNotPlaylist    = errors.New("identifier is not a playlist")
	ErrNoAudioFormats = errors.New("no audio formats available")

	watchPattern = regexp.MustCompile(`(?:youtube\.com/.*?watch\?v=|youtu\.be/)([\w\-]+)`)
	listPattern  = regexp.MustCompile(`youtube\.com/.*?list=([\w\-]+)`)
)

// Resolver resolves track identifiers against YouTube and direct media
// URLs. Upstream calls go through an adaptive limiter with bounded
// retry so one flaky lookup degrades gracefully.
type Resolver struct {
	yt     *youtube.Client
	search *ytsearch.Client
	lim    *retrylimit.AdaptiveLimiter
}

func New() *Resolver {
	return &Resolver{
		yt:     &youtube.Client{},
		search: ytsearch.NewClient(nil),
		lim:    retrylimit.NewAdaptiveLimiter(5, 1, 20),
	}
}

// Resolve maps an identifier to one or more tracks. Requester fields of
// the returned tracks are left empty; the caller stamps them.
func (r *Resolver) Resolve(ctx context.Context, identifier string) ([]track.Track, error) {
	identifier = strings.TrimSpace(identifier)

	switch {
	case listPattern.MatchString(identifier):
		return r.resolvePlaylist(ctx, identifier)
	case watchPattern.MatchString(identifier):
		t, err := r.resolveVideo(ctx, watchPattern.FindStringSubmatch(identifier)[1])
		if err != nil {
			return nil, err
		}
		return []track.Track{t}, nil
	case strings.HasPrefix(identifier, "http://"), strings.HasPrefix(identifier, "https://"):
		return []track.Track{directTrack(identifier)}, nil
	default:
		t, err := r.resolveQuery(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return []track.Track{t}, nil
	}
}

// resolveVideo resolves a known YouTube video id into a track with a
// playable stream URL.
func (r *Resolver) resolveVideo(ctx context.Context, videoID string) (track.Track, error) {
	var video *youtube.Video
	err := retrylimit.WithRetry(ctx, r.lim, 3, func() error {
		v, err := r.yt.GetVideoContext(ctx, videoID)
		if err != nil {
			return err
		}
		video = v
		return nil
	})
	if err != nil {
		return track.Track{}, fmt.Errorf("video lookup failed for %q: %w", videoID, err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return track.Track{}, ErrNoAudioFormats
	}

	streamURL, err := r.yt.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return track.Track{}, fmt.Errorf("stream URL lookup failed for %q: %w", videoID, err)
	}

	var thumbnail string
	if len(video.Thumbnails) > 0 {
		thumbnail = video.Thumbnails[0].URL
	}

	return track.Track{
		Title:     video.Title,
		Duration:  video.Duration,
		StreamURL: streamURL,
		SourceID:  video.ID,
		Thumbnail: thumbnail,
		Requested: time.Now(),
	}, nil
}

// resolveQuery searches YouTube and resolves the first hit.
func (r *Resolver) resolveQuery(ctx context.Context, query string) (track.Track, error) {
	res, err := r.search.Search(ctx, query)
	if err != nil {
		return track.Track{}, fmt.Errorf("search failed for %q: %w", query, err)
	}
	if len(res.Results) == 0 {
		return track.Track{}, ErrNoResults
	}
	return r.resolveVideo(ctx, res.Results[0].VideoID)
}

// resolvePlaylist resolves the first entries of a playlist URL.
func (r *Resolver) resolvePlaylist(ctx context.Context, playlistURL string) ([]track.Track, error) {
	var playlist *youtube.Playlist
	err := retrylimit.WithRetry(ctx, r.lim, 3, func() error {
		p, err := r.yt.GetPlaylistContext(ctx, playlistURL)
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPlaylist, err)
	}

	entries := playlist.Videos
	if len(entries) > playlistLimit {
		entries = entries[:playlistLimit]
	}

	var tracks []track.Track
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t, err := r.resolveVideo(ctx, entry.ID)
		if err != nil {
			log.Warn().Err(err).Str("video", entry.ID).Str("playlist", playlist.Title).
				Msg("skipping unresolvable playlist entry")
			continue
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	return tracks, nil
}

// directTrack wraps a bare media URL; duration stays unknown.
func directTrack(rawURL string) track.Track {
	return track.Track{
		Title:     track.TitleFromURL(rawURL),
		StreamURL: rawURL,
		SourceID:  rawURL,
		Requested: time.Now(),
	}
}
