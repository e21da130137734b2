// Package inline merges document stylesheets into element-level style
// attributes so the markup survives paste targets that strip <style>.
package inline

import (
	"github.com/vanng822/go-premailer/premailer"
	"go.uber.org/zap"
)

// Inliner wraps the style-inlining pass. It degrades rather than fails:
// when inlining errors out the caller gets the input back untouched.
type Inliner struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Inliner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inliner{log: log.Named("inline")}
}

// Merge inlines every applicable stylesheet rule of a full HTML document
// into style attributes, dropping the <style> blocks afterwards.
func (i *Inliner) Merge(fullHTML string) string {
	opts := premailer.NewOptions()
	opts.RemoveClasses = false
	opts.KeepBangImportant = true

	styler, err := premailer.NewPremailerFromString(fullHTML, opts)
	if err != nil {
		i.log.Warn("Style inlining unavailable, keeping stylesheet as-is", zap.Error(err))
		return fullHTML
	}
	out, err := styler.Transform()
	if err != nil {
		i.log.Warn("Style inlining failed, keeping stylesheet as-is", zap.Error(err))
		return fullHTML
	}
	return out
}
