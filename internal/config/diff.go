package config

import (
	"reflect"
	"sort"
	"strings"

	"arcbot/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// structured attrs for logging. Secrets (tokens) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		nl := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	if oldCfg.Tracker != newCfg.Tracker {
		tr := newCfg.Tracker
		changed = append(changed, "tracker")
		attrs = append(attrs,
			logx.Bool("tracker.disabled", tr.Disabled),
			logx.Bool("tracker.source_url_set", strings.TrimSpace(tr.SourceURL) != ""),
			logx.String("tracker.fetch_timeout", strings.TrimSpace(tr.FetchTimeout)),
			logx.String("tracker.freshness_window", strings.TrimSpace(tr.FreshnessWindow)),
		)
	}

	if oldCfg.Live != newCfg.Live {
		changed = append(changed, "live")
		attrs = append(attrs,
			logx.String("live.interval", strings.TrimSpace(newCfg.Live.Interval)),
			logx.String("live.max_duration", strings.TrimSpace(newCfg.Live.MaxDuration)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Announce, newCfg.Announce) {
		na := newCfg.Announce
		changed = append(changed, "announce")
		attrs = append(attrs,
			logx.Bool("announce.enabled", na.Enabled),
			logx.String("announce.spec", na.SpecOrDefault()),
			logx.String("announce.timezone", strings.TrimSpace(na.Timezone)),
			logx.Int("announce.targets", len(na.Targets)),
		)
	}

	if no := newCfg.Observability; oldCfg.Observability != no {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", no.Enabled),
			logx.String("observability.addr", strings.TrimSpace(no.Addr)),
			logx.Bool("observability.pprof", no.Pprof),
			logx.Bool("observability.token_set", strings.TrimSpace(no.Token) != ""),
			logx.Bool("observability.allow_insecure", no.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
