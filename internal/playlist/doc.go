// Package playlist resolves a source URL into the ordered list of segments the
// download engine fetches.
//
// HLS playlists are decoded with github.com/grafov/m3u8. Master playlists are
// narrowed to the variant with the highest declared bandwidth, and every
// segment URI is made absolute against the playlist it came from. Anything that
// does not start with #EXTM3U is treated as a single direct stream.
package playlist
