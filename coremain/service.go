package coremain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/mlog"
)

var svcCfg = &service.Config{
	Name:        "resolverd",
	DisplayName: "resolverd",
	Description: "A caching name resolver.",
}

type serverService struct {
	f *serverFlags
	s *Server
}

func (ss *serverService) Start(_ service.Service) error {
	s, cfg, fileUsed, err := prepareServer(ss.f)
	if err != nil {
		return err
	}
	ss.s = s
	go func() {
		if err := s.Run(cfg, fileUsed); err != nil {
			mlog.L().Error("resolverd exited", zap.Error(err))
			os.Exit(1)
		}
	}()
	return nil
}

func (ss *serverService) Stop(_ service.Service) error {
	if ss.s != nil {
		ss.s.Shutdown()
	}
	return nil
}

var svc service.Service

func initService(_ *cobra.Command, _ []string) error {
	s, err := service.New(&serverService{}, svcCfg)
	if err != nil {
		return fmt.Errorf("cannot init service, %w", err)
	}
	svc = s
	return nil
}

func newSvcInstallCmd() *cobra.Command {
	sf := new(serverFlags)
	c := &cobra.Command{
		Use:   "install [-d working_dir] [-c config_file]",
		Short: "Install resolverd as a system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sf.dir) == 0 {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get current working dir, %w", err)
				}
				sf.dir = wd
			}
			dir, err := filepath.Abs(sf.dir)
			if err != nil {
				return fmt.Errorf("failed to resolve working dir, %w", err)
			}
			svcCfg.Arguments = []string{"start", "--as-service", "-d", dir}
			if len(sf.c) > 0 {
				svcCfg.Arguments = append(svcCfg.Arguments, "-c", sf.c)
			}
			s, err := service.New(&serverService{f: sf}, svcCfg)
			if err != nil {
				return fmt.Errorf("failed to init service, %w", err)
			}
			return s.Install()
		},
		SilenceUsage: true,
	}
	c.Flags().StringVarP(&sf.c, "config", "c", "", "config file")
	c.Flags().StringVarP(&sf.dir, "dir", "d", "", "working dir")
	return c
}

func newSvcUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "uninstall",
		Short:        "Uninstall resolverd from system service.",
		RunE:         func(cmd *cobra.Command, args []string) error { return svc.Uninstall() },
		SilenceUsage: true,
	}
}

func newSvcStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start resolverd system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.Start(); err != nil {
				return err
			}
			mlog.S().Info("service is starting")
			return nil
		},
		SilenceUsage: true,
	}
}

func newSvcStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "stop",
		Short:        "Stop resolverd system service.",
		RunE:         func(cmd *cobra.Command, args []string) error { return svc.Stop() },
		SilenceUsage: true,
	}
}

func newSvcRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "restart",
		Short:        "Restart resolverd system service.",
		RunE:         func(cmd *cobra.Command, args []string) error { return svc.Restart() },
		SilenceUsage: true,
	}
}

func newSvcStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Status of resolverd system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc.Status()
			if err != nil {
				return fmt.Errorf("cannot get service status, %w", err)
			}
			var out string
			switch s {
			case service.StatusRunning:
				out = "running"
			case service.StatusStopped:
				out = "stopped"
			case service.StatusUnknown:
				out = "unknown"
			default:
				return errors.New("unexpected service status")
			}
			mlog.S().Infof("service is %s", out)
			return nil
		},
		SilenceUsage: true,
	}
}
