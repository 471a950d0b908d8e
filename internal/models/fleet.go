package models

// UPSConfig 单台UPS的监控配置（机群配置文档中的一项）
type UPSConfig struct {
	Name                   string   `json:"name" yaml:"name"`
	Host                   string   `json:"host" yaml:"host"`
	Port                   int      `json:"port" yaml:"port"`                         // apcupsd NIS 端口，默认 3551
	IntervalSeconds        int      `json:"interval_seconds" yaml:"interval_seconds"` // 轮询间隔（秒），默认 30
	AlertLoadPctHigh       *float64 `json:"alert_loadpct_high,omitempty" yaml:"alert_loadpct_high"`             // LOADPCT >= 阈值时告警
	AlertBChargeLow        *float64 `json:"alert_bcharge_low,omitempty" yaml:"alert_bcharge_low"`               // BCHARGE <= 阈值时告警
	AlertOnBattery         bool     `json:"alert_on_battery" yaml:"alert_on_battery"`                           // STATUS 指示电池供电时告警
	AlertRuntimeLowMinutes *float64 `json:"alert_runtime_low_minutes,omitempty" yaml:"alert_runtime_low_minutes"` // TIMELEFT <= 分钟数时告警
}

// Normalize 填充未设置字段的默认值
func (u *UPSConfig) Normalize() {
	if u.Port == 0 {
		u.Port = 3551
	}
	if u.IntervalSeconds == 0 {
		u.IntervalSeconds = 30
	}
}

// SMTPConfig 告警邮件投递配置
type SMTPConfig struct {
	Host          string   `json:"host" yaml:"host"`
	Port          int      `json:"port" yaml:"port"`
	Username      string   `json:"username,omitempty" yaml:"username"`
	Password      string   `json:"password,omitempty" yaml:"password"` // 为空时使用环境变量 SMTP_PASSWORD
	UseTLS        bool     `json:"use_tls" yaml:"use_tls"`             // STARTTLS
	UseSSL        bool     `json:"use_ssl" yaml:"use_ssl"`             // 隐式TLS
	FromAddr      string   `json:"from_addr,omitempty" yaml:"from_addr"`
	ToAddrs       []string `json:"to_addrs" yaml:"to_addrs"`
	SubjectPrefix string   `json:"subject_prefix" yaml:"subject_prefix"` // 默认 "[UPS]"
}

// UIConfig 面板功能开关；引擎只关心两个趋势告警开关，其余字段原样保存
type UIConfig struct {
	ShowEvents                  bool `json:"show_events" yaml:"show_events"`
	ShowEnergy                  bool `json:"show_energy" yaml:"show_energy"`
	ColorBadges                 bool `json:"color_badges" yaml:"color_badges"`
	ShowHeadroom                bool `json:"show_headroom" yaml:"show_headroom"`
	ShowWatts                   bool `json:"show_watts" yaml:"show_watts"`
	ShowRuntime                 bool `json:"show_runtime" yaml:"show_runtime"`
	AllowResize                 bool `json:"allow_resize" yaml:"allow_resize"`
	EnableTransferBurstAlert    bool `json:"enable_transfer_burst_alert" yaml:"enable_transfer_burst_alert"`
	EnableVoltageDeviationAlert bool `json:"enable_voltage_deviation_alert" yaml:"enable_voltage_deviation_alert"`
}

// DefaultUIConfig 默认面板开关
func DefaultUIConfig() UIConfig {
	return UIConfig{
		ShowEvents:   true,
		ShowEnergy:   false,
		ColorBadges:  true,
		ShowHeadroom: true,
		ShowWatts:    true,
		ShowRuntime:  true,
		AllowResize:  true,
		// 两个趋势告警默认关闭
		EnableTransferBurstAlert:    false,
		EnableVoltageDeviationAlert: false,
	}
}

// FleetConfig 机群配置文档（Redis键 ups:config:json 中的JSON）
type FleetConfig struct {
	UPS  []UPSConfig `json:"ups" yaml:"ups"`
	SMTP *SMTPConfig `json:"smtp,omitempty" yaml:"smtp"`
	UI   UIConfig    `json:"ui" yaml:"ui"`
}

// FindUPS 按名称查找UPS配置，未找到返回nil
func (f *FleetConfig) FindUPS(name string) *UPSConfig {
	for i := range f.UPS {
		if f.UPS[i].Name == name {
			return &f.UPS[i]
		}
	}
	return nil
}

// Clone 返回配置文档的独立副本，修改副本不影响原文档
func (f *FleetConfig) Clone() *FleetConfig {
	out := &FleetConfig{
		UPS: make([]UPSConfig, len(f.UPS)),
		UI:  f.UI,
	}
	copy(out.UPS, f.UPS)
	if f.SMTP != nil {
		smtp := *f.SMTP
		smtp.ToAddrs = append([]string(nil), f.SMTP.ToAddrs...)
		out.SMTP = &smtp
	}
	return out
}
