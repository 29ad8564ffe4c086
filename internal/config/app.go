package config

type AppConfig struct {
	Server  ServerConfig
	Auction AuctionConfig
	Log     LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	auctionCfg, err := LoadAuction()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server:  serverCfg,
		Auction: auctionCfg,
		Log:     logCfg,
	}, nil
}
