// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n holds the localized mail texts. Catalogs are embedded TOML
// files, one per supported language, and English fills any gap.
package i18n

import (
	"context"
	"embed"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// supported is in matcher preference order; the first entry is the fallback.
var supported = []language.Tag{
	language.English,
	language.Indonesian,
}

var (
	bundle  *i18n.Bundle
	matcher = language.NewMatcher(supported)
)

type localeContextKey struct{}
type localizerContextKey struct{}

// Init loads translations/active.<lang>.toml for every supported language.
func Init() error {
	b := i18n.NewBundle(supported[0])
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, tag := range supported {
		if _, err := b.LoadMessageFileFS(translationFS, "translations/active."+tag.String()+".toml"); err != nil {
			return err
		}
	}

	bundle = b
	return nil
}

// WithLocale stores lang and a localizer for it on ctx.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	locale := lang.String()
	ctx = context.WithValue(ctx, localeContextKey{}, locale)
	return context.WithValue(ctx, localizerContextKey{}, i18n.NewLocalizer(bundle, locale))
}

// GetLocale is the locale stored by WithLocale, or the fallback language.
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	return supported[0].String()
}

// T returns the message for messageID, or messageID itself if no catalog has it.
func T(ctx context.Context, messageID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: messageID})
}

// TData is T with template data for the message body.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
}

// MatchLanguage picks the supported language closest to an Accept-Language value.
func MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	localizer, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer)
	if !ok {
		localizer = i18n.NewLocalizer(bundle, supported[0].String())
	}
	msg, err := localizer.Localize(cfg)
	if err != nil {
		return cfg.MessageID
	}
	return msg
}
