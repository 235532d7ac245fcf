package transmission

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidMagnet is returned for links that cannot be handed to torrent-add.
var ErrInvalidMagnet = errors.New("invalid magnet link format")

// ParseMagnetLink extracts information from a magnet link
func ParseMagnetLink(magnetURI string) (*MagnetLink, error) {
	if !strings.HasPrefix(magnetURI, "magnet:?") {
		return nil, ErrInvalidMagnet
	}

	queryString := strings.TrimPrefix(magnetURI, "magnet:?")
	values, err := url.ParseQuery(queryString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse magnet link query")
	}

	magnet := &MagnetLink{}

	// Extract the hash (btih)
	if hash := values.Get("xt"); hash != "" {
		magnet.Hash = strings.TrimPrefix(hash, "urn:btih:")
	}
	if magnet.Hash == "" {
		return nil, errors.Wrap(ErrInvalidMagnet, "missing xt parameter")
	}

	magnet.DisplayName = values.Get("dn")
	magnet.Trackers = values["tr"]
	magnet.ExactLength = values.Get("xl")
	magnet.ExactSource = values.Get("xs")
	magnet.Keywords = values.Get("kt")
	magnet.AcceptableSource = values.Get("as")

	return magnet, nil
}
