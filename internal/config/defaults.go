package config

// DefaultSources returns the built-in log-source catalog.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Pattern: "arp_vpn*", Description: "ARP system user action log"},
		{Pattern: "arp_firewall*", Description: "ARP system firewall log"},
		{Pattern: "cas_apache_abnormal*", Description: "Website cluster apache server anomalies"},
		{Pattern: "cas_nginx_abnormal*", Description: "Website cluster nginx server anomalies"},
		{Pattern: "email_access*", Description: "Mail system apache server access log, records user visits"},
		{Pattern: "email_user_action_2026*", Description: "Mail system user action log, logins and mailbox operations"},
		{Pattern: "email_firewall*", Description: "Mail system firewall log"},
		{Pattern: "kjyp_xserver_acc*", Description: "Science cloud drive user action log"},
		{Pattern: "pass_access*", Description: "Passport system apache server access log"},
		{Pattern: "pass_user_action_2026*", Description: "Passport system user action log"},
		{Pattern: "pass_security_bastion*", Description: "Passport system bastion host log"},
		{Pattern: "vpn_abnormal_whole*", Description: "VPN anomalies for the ARP system, website cluster and earth big-data system"},
		{Pattern: "security_system_nginx*", Description: "Nginx log for the science cloud drive and the offensive platform"},
	}
}

// DefaultSchemas returns the built-in schema table. Order is priority.
// arp_firewall* and security_system_nginx* carry the fallback fields so
// that they still route to a cluster.
func DefaultSchemas() []SchemaConfig {
	return []SchemaConfig{
		{Pattern: "arp_vpn*", IPFields: []string{"ip"}, TimestampField: "createDate"},
		{Pattern: "cas_apache_abnormal*", IPFields: []string{"iP"}, TimestampField: "create_date"},
		{Pattern: "cas_nginx_abnormal*", IPFields: []string{"iP"}, TimestampField: "create_date"},
		{Pattern: "email_access*", IPFields: []string{"IP"}, TimestampField: "create_date"},
		{Pattern: "email_user_action_2026*", IPFields: []string{"IP"}, TimestampField: "create_date"},
		{Pattern: "email_firewall*", IPFields: []string{"srcIP", "dstIP"}, TimestampField: "create_date"},
		{Pattern: "kjyp_xserver_acc*", IPFields: []string{"ip"}, TimestampField: "datetime"},
		{Pattern: "pass_access*", IPFields: []string{"clientIp"}, TimestampField: "create_date"},
		{Pattern: "pass_user_action_2026*", IPFields: []string{"IP"}, TimestampField: "create_date"},
		{Pattern: "pass_security_bastion*", IPFields: []string{"devIp"}, TimestampField: "operationTime"},
		{Pattern: "vpn_abnormal_whole*", IPFields: []string{"srcIp"}, TimestampField: "create_date"},
		{Pattern: "arp_firewall*", IPFields: []string{"IP"}, TimestampField: "create_date"},
		{Pattern: "security_system_nginx*", IPFields: []string{"IP"}, TimestampField: "create_date"},
	}
}
