package ecommerce

import "github.com/adsync/backend/internal/domain/integration"

// adsInsightFields are the metrics requested at every level
var adsInsightFields = []string{
	"account_id",
	"account_name",
	"account_currency",
	"date_start",
	"date_stop",
	"spend",
	"impressions",
	"clicks",
	"reach",
	"frequency",
	"ctr",
	"cpc",
	"cpm",
	"inline_link_clicks",
	"conversions",
	"conversion_values",
	"actions",
	"action_values",
	"purchase_roas",
	"website_purchase_roas",
	"video_play_actions",
	"video_p25_watched_actions",
	"video_p50_watched_actions",
	"video_p75_watched_actions",
	"video_p100_watched_actions",
}

// adsCampaignFields are added when reporting at campaign level
var adsCampaignFields = []string{"campaign_id", "campaign_name"}

// adsLevel maps an entity type onto the insights "level" parameter
func adsLevel(t integration.EntityType) string {
	if t == integration.EntityTypeCampaign {
		return "campaign"
	}
	return "account"
}
