// Package tgui provides small Telegram UI helpers: HTML escaping, inline
// keyboards, callback data and a message builder that defaults to
// ParseMode=HTML.
package tgui
