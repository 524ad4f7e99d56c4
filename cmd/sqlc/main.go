package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const defaultConfigName = "sqlc.yaml"

func generateConfig(engine *viper.Viper, file string) (string, error) {
	var (
		dir, _      = filepath.Split(file)
		parts       = strings.Split(dir, string(os.PathSeparator))
		packageName = parts[len(parts)-2]
	)
	engine.Set("gen.go.package", packageName)
	engine.Set("queries", file)

	engine.Set("gen.go.out", dir)
	engineSettings := engine.AllSettings()
	delete(engineSettings, "source")

	resultConfig := viper.New()
	resultConfig.Set("version", viper.GetString("version"))
	resultConfig.Set("sql", []interface{}{engineSettings})

	allSettings := resultConfig.AllSettings()

	bs, err := yaml.Marshal(allSettings)
	if err != nil {
		return "", errors.Wrap(err, "marshal config to yaml")
	}
	content := string(bs)
	_ = os.Remove(defaultConfigName)
	temp, err := os.Create(defaultConfigName)
	if err != nil {
		return "", errors.Wrap(err, "create sqlc.yaml file")
	}
	if _, err = temp.WriteString(content); err != nil {
		_ = os.Remove(temp.Name())
		return "", errors.Wrap(err, "write content")
	}
	return temp.Name(), nil
}

func callSqlc(config string) error {
	cmd := exec.Command("sqlc", "generate", "--file", config)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("call sqlc: %s", string(output)))
	}
	return nil
}

// sqlc вызывается по одному разу на каждый файл запросов: пакет берём из имени каталога.
func run(base string, dry bool) error {
	viper.SetConfigFile(base)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read base config")
	}
	patterns := viper.GetStringSlice("sql.0.source")
	if len(patterns) == 0 {
		return errors.New("has no sql.0.source in config")
	}
	var files []string
	for _, pattern := range patterns {
		f, err := filepath.Glob(pattern)
		if err != nil {
			return errors.Wrapf(err, "glob %s", pattern)
		}
		files = append(files, f...)
	}

	engine := viper.Sub("sql.0")
	engine.Set("schema", viper.GetString("sql.0.schema"))
	defer func() {
		_ = os.Remove(defaultConfigName)
	}()

	for _, file := range files {
		configFile, err := generateConfig(engine, file)
		if err != nil {
			return errors.Wrapf(err, "generate config for %s", file)
		}
		if dry {
			fmt.Printf("%s: %s\n", file, configFile)
			continue
		}
		if err := callSqlc(configFile); err != nil {
			return err
		}
		fmt.Printf("%s file complete\n", file)
	}
	return nil
}

func main() {
	base := pflag.String("base", ".sqlc.base.yaml", "базовый конфиг sqlc")
	dry := pflag.Bool("dry-run", false, "только собрать sqlc.yaml, не вызывая sqlc")
	pflag.Parse()

	if err := run(*base, *dry); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("done")
}
