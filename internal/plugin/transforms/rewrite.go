package transforms

import (
	"context"
	"log/slog"
	"regexp"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// Rewrite returns an injector that replaces matches of pattern with repl.
// Only the first match is replaced unless all is set. When the output equals
// the input it logs "pattern not found" and reports no change.
func Rewrite(name string, pattern *regexp.Regexp, repl string, all bool, logger *slog.Logger) InjectFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, src string) (string, bool, error) {
		var out string
		if all {
			out = pattern.ReplaceAllString(src, repl)
		} else {
			out = replaceFirst(pattern, src, repl)
		}
		if out == src {
			logger.WarnContext(ctx, "pattern not found",
				logfields.Injector(name),
				slog.String("pattern", pattern.String()))
			return src, false, nil
		}
		return out, true, nil
	}
}

func replaceFirst(re *regexp.Regexp, src, repl string) string {
	loc := re.FindStringSubmatchIndex(src)
	if loc == nil {
		return src
	}
	var dst []byte
	dst = re.ExpandString(dst, repl, src, loc)
	return src[:loc[0]] + string(dst) + src[loc[1]:]
}
