package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EventSink       = SinkFunc(nil)
	_ Transport       = TransportFunc(nil)
	_ CredentialCodec = JSONCredentialCodec{}
	_ CredentialCodec = RawCredentialCodec{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
