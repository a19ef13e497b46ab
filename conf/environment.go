package conf

import "os"

// environment
type EnvironmentEnum int8

const (
	ExampleEnvironmentEnum    EnvironmentEnum = 0x01
	MainnetEnvironmentEnum    EnvironmentEnum = 0x02
	TestnetEnvironmentEnum    EnvironmentEnum = 0x03
	TestnetLocEnvironmentEnum EnvironmentEnum = 0x04
)

var SystemEnvironmentEnum = ExampleEnvironmentEnum

// ParseEnvironment 从名称解析运行环境，未知名称返回 false
func ParseEnvironment(name string) (EnvironmentEnum, bool) {
	switch name {
	case "example":
		return ExampleEnvironmentEnum, true
	case "pro", "mainnet":
		return MainnetEnvironmentEnum, true
	case "test", "testnet":
		return TestnetEnvironmentEnum, true
	case "test_loc", "local":
		return TestnetLocEnvironmentEnum, true
	}
	return 0, false
}

func GetYaml() string {
	if env, ok := ParseEnvironment(os.Getenv("PUSH_ENV")); ok {
		SystemEnvironmentEnum = env
	}
	var (
		ConfigFile = "conf/conf_example.yaml"
	)
	if SystemEnvironmentEnum == MainnetEnvironmentEnum {
		ConfigFile = "conf/conf_pro.yaml"
	} else if SystemEnvironmentEnum == ExampleEnvironmentEnum {
		ConfigFile = "conf/conf_example.yaml"
	} else if SystemEnvironmentEnum == TestnetEnvironmentEnum {
		ConfigFile = "conf/conf_test.yaml"
	} else if SystemEnvironmentEnum == TestnetLocEnvironmentEnum {
		ConfigFile = "conf/conf_test_loc.yaml"
	}
	return ConfigFile
}
