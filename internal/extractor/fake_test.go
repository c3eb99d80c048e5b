package extractor

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeExtractor mimics the yt-dlp command line closely enough for the
// invoker: version probe, JSON dump, extractor list and downloads whose
// behaviour depends on the URL.
const fakeExtractor = `#!/bin/sh
mode=download
ext=mp4
out=
url=
while [ $# -gt 0 ]; do
	case "$1" in
	--version) echo "2024.08.06"; exit 0 ;;
	--dump-json) mode=info ;;
	--list-extractors) mode=list ;;
	--extract-audio) ext=mp3 ;;
	-o) shift; out="$1" ;;
	--) shift; url="$1" ;;
	esac
	shift
done
case "$mode" in
info)
	case "$url" in
	*unsupported*) echo "ERROR: Unsupported URL: $url" >&2; exit 1 ;;
	*slow*) exec sleep 5 ;;
	*broken*) echo "not json"; exit 0 ;;
	*fail*) echo "ERROR: HTTP Error 403: Forbidden" >&2; exit 1 ;;
	esac
	echo '{"title":"My Song!","thumbnail":"https://img.example/t.jpg","duration":185,"uploader":"Someone","view_count":42,"formats":[{"format_id":"18"}]}'
	;;
list)
	printf 'youtube\nvimeo\n\ntiktok\n'
	;;
download)
	path=$(printf '%s' "$out" | sed "s/%(ext)s\$/$ext/")
	case "$url" in
	*lingering*) printf 'media-bytes' > "$path"; ( exec sleep 4 ) & exit 0 ;;
	*orphan*) ( sleep 1; printf 'late' > "$path" ) & exec sleep 5 ;;
	*slow*) exec sleep 5 ;;
	*fail*) printf 'x' > "$path.part"; echo "ERROR: Requested format is not available" >&2; exit 1 ;;
	*empty*) exit 0 ;;
	esac
	printf 'media-bytes' > "$path.part"
	mv "$path.part" "$path"
	;;
esac
`

// brokenExtractor fails the version probe and leaves a marker when it is
// invoked for anything else.
const brokenExtractor = `#!/bin/sh
if [ "$1" = "--version" ]; then exit 1; fi
touch "$(dirname "$0")/invoked"
`

func writeScript(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor needs a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// shellCandidate runs script through /bin/sh, the interpreter form of a candidate
func shellCandidate(script string) Candidate {
	return Candidate{Path: "/bin/sh", Args: []string{script}}
}
